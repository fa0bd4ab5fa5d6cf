// Package postgres implements the store using pgx/v5 with raw SQL.
// Guarded status transitions and task claims compile to single
// conditional UPDATEs; schema lives in embedded SQL migrations.
package postgres
