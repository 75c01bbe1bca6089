package config

// ReportPoolDebitAtomic makes the daily report insert and its money pool debit one transaction.
// When disabled, the report is committed first and the debit is attempted afterwards;
// a failed debit is then only reported through pool_updated=false.
//
// Set via env:
// - REPORT_POOL_DEBIT_ATOMIC=false
func ReportPoolDebitAtomic() bool {
	return boolFromEnv("REPORT_POOL_DEBIT_ATOMIC", true)
}

// SkipMigrations disables AutoMigrate on startup (run migrations as a separate job instead).
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS", false)
}
