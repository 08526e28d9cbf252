package statedb

import "codeberg.org/mutker/chassisctl/internal/errors"

const (
	// Configuration Errors
	ErrInvalidDBPath = errors.ErrorCode("statedb_invalid_db_path")

	// Schema Errors
	ErrSchemaValidationFailed = errors.ErrorCode("statedb_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("statedb_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("statedb_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("statedb_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed
	ErrReadOnly      = errors.ErrorCode("statedb_read_only")
)
