package models

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const employeesTable = "employees"

type EmployeeRole string

const (
	EmployeeRoleFounder EmployeeRole = "FOUNDER"
	EmployeeRoleHR      EmployeeRole = "HR"
)

// EmployeeSchemaCandidates are the known layouts of the employees table, newest first.
var EmployeeSchemaCandidates = []SchemaCandidate{
	{Version: "v5", Columns: []string{"id", "email", "name", "role", "active"}},
	{Version: "v4", Columns: []string{"id", "email", "role", "active"}},
	{Version: "v3", Columns: []string{"id", "email", "role"}},
	{Version: "v2", Columns: []string{"id", "name", "role"}},
	{Version: "v1", Columns: []string{"id", "role"}},
}

// Employee mirrors an identity-provider account; ID is the identity user id.
type Employee struct {
	ID        string       `gorm:"primaryKey;size:64" json:"id"`
	Email     *string      `gorm:"size:255;uniqueIndex" json:"email"`
	Name      *string      `gorm:"size:255" json:"name"`
	Role      EmployeeRole `gorm:"size:32;not null" json:"role"`
	Active    *bool        `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"type:datetime;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Employee) TableName() string {
	return employeesTable
}

type EmployeeRecord struct {
	Id    string
	Email string
	Name  string
	Role  EmployeeRole
}

func (r EmployeeRecord) values() map[string]interface{} {
	return map[string]interface{}{
		"id":     r.Id,
		"email":  r.Email,
		"name":   r.Name,
		"role":   string(r.Role),
		"active": true,
	}
}

// UpsertEmployee inserts or updates the employee row keyed by id, starting at candidate start.
func UpsertEmployee(ctx context.Context, db *gorm.DB, start int, record EmployeeRecord) (SchemaCandidate, error) {
	return writeWithFallback(employeesTable, EmployeeSchemaCandidates, start, record.values(), func(payload map[string]interface{}) error {
		updates := make([]string, 0, len(payload))
		for col := range payload {
			if col != "id" {
				updates = append(updates, col)
			}
		}
		sort.Strings(updates)
		return db.WithContext(ctx).Table(employeesTable).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(updates),
			}).
			Create(payload).Error
	})
}

// DeleteEmployeeRow removes the employee by id and then by email.
// A table without an email column is not an error.
func DeleteEmployeeRow(ctx context.Context, db *gorm.DB, userId string, email string) error {
	if userId != "" {
		if err := db.WithContext(ctx).Where("id = ?", userId).Delete(&Employee{}).Error; err != nil {
			return err
		}
	}
	if email != "" {
		err := db.WithContext(ctx).Where("email = ?", email).Delete(&Employee{}).Error
		if err != nil && !isUnknownColumnErr(err, "email") {
			return err
		}
	}
	return nil
}
