package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// SchemaCandidate is one known column layout of an externally managed table.
// Candidates are listed from most to least complete.
type SchemaCandidate struct {
	Version string
	Columns []string
}

// Payload picks the candidate's columns out of values. Missing values are written as NULL.
func (c SchemaCandidate) Payload(values map[string]interface{}) map[string]interface{} {
	payload := make(map[string]interface{}, len(c.Columns))
	for _, col := range c.Columns {
		payload[col] = values[col]
	}
	return payload
}

// SchemaContract records, per table, the index of the first candidate the live schema supports.
type SchemaContract struct {
	Report   int
	Employee int
}

// FullSchemaContract assumes tables created by MigrateTable.
var FullSchemaContract = SchemaContract{}

// SchemaFallbackError is returned when no candidate could be written.
// Err is the last database error.
type SchemaFallbackError struct {
	Table    string
	Attempts []string
	Err      error
}

func (e *SchemaFallbackError) Error() string {
	return fmt.Sprintf("write %s failed after %s: %v", e.Table, strings.Join(e.Attempts, ","), e.Err)
}

func (e *SchemaFallbackError) Unwrap() error { return e.Err }

// schemaInspector is the part of gorm.Migrator the resolver needs.
type schemaInspector interface {
	HasTable(dst interface{}) bool
	HasColumn(dst interface{}, field string) bool
}

// moneyPoolColumns must all exist; debits cannot fall back to a smaller layout.
var moneyPoolColumns = []string{"id", "prev_id", "layer1_amount", "layer2_amount", "created_at"}

// ResolveSchemaContract inspects the live tables and picks, for each, the most complete
// candidate whose columns all exist. It fails when a table fits no candidate or when
// company_money_pool lacks a column the ledger writes.
func ResolveSchemaContract(db *gorm.DB) (SchemaContract, error) {
	return resolveSchemaContract(db.Migrator())
}

func resolveSchemaContract(inspector schemaInspector) (SchemaContract, error) {
	if err := requireColumns(inspector, moneyPoolTable, moneyPoolColumns); err != nil {
		return SchemaContract{}, err
	}
	report, err := resolveCandidate(inspector, reportsTable, ReportSchemaCandidates)
	if err != nil {
		return SchemaContract{}, err
	}
	employee, err := resolveCandidate(inspector, employeesTable, EmployeeSchemaCandidates)
	if err != nil {
		return SchemaContract{}, err
	}
	return SchemaContract{Report: report, Employee: employee}, nil
}

func requireColumns(inspector schemaInspector, table string, columns []string) error {
	if !inspector.HasTable(table) {
		return fmt.Errorf("table %s does not exist", table)
	}
	var missing []string
	for _, col := range columns {
		if !inspector.HasColumn(table, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns %s; run migrations", table, strings.Join(missing, ","))
	}
	return nil
}

func resolveCandidate(inspector schemaInspector, table string, candidates []SchemaCandidate) (int, error) {
	if !inspector.HasTable(table) {
		return 0, fmt.Errorf("table %s does not exist", table)
	}
	for i, candidate := range candidates {
		supported := true
		for _, col := range candidate.Columns {
			if !inspector.HasColumn(table, col) {
				supported = false
				break
			}
		}
		if supported {
			return i, nil
		}
	}
	return 0, fmt.Errorf("table %s matches no known schema version", table)
}

// writeWithFallback tries candidates[start:] in order. A schema mismatch moves on to the
// next candidate; any other error stops immediately.
func writeWithFallback(table string, candidates []SchemaCandidate, start int, values map[string]interface{}, write func(payload map[string]interface{}) error) (SchemaCandidate, error) {
	if start < 0 || start >= len(candidates) {
		start = 0
	}
	var attempts []string
	var lastErr error
	for _, candidate := range candidates[start:] {
		attempts = append(attempts, candidate.Version)
		err := write(candidate.Payload(values))
		if err == nil {
			return candidate, nil
		}
		lastErr = err
		if IsSchemaMismatchErr(err) {
			continue
		}
		break
	}
	return SchemaCandidate{}, &SchemaFallbackError{Table: table, Attempts: attempts, Err: lastErr}
}

// MySQL error numbers that mean "this payload does not fit the table".
var schemaMismatchErrNumbers = map[uint16]struct{}{
	1048: {}, // column cannot be null
	1054: {}, // unknown column
	1265: {}, // data truncated
	1292: {}, // incorrect date/number value
	1364: {}, // field has no default
	1366: {}, // incorrect value for column
}

var schemaMismatchPattern = regexp.MustCompile(`(?i)column .* does not exist|unknown column|invalid input syntax|violates not-null constraint`)

// IsSchemaMismatchErr reports whether err is an unknown-column, type-mismatch or not-null class error.
func IsSchemaMismatchErr(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		_, ok := schemaMismatchErrNumbers[mysqlErr.Number]
		return ok
	}
	return schemaMismatchPattern.MatchString(err.Error())
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// isUnknownColumnErr reports whether err complains about column being absent.
func isUnknownColumnErr(err error, column string) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number != 1054 {
		return false
	}
	pattern := regexp.MustCompile(`(?i)column .*` + regexp.QuoteMeta(column))
	return pattern.MatchString(err.Error())
}
