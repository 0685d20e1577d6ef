package database

import "errors"

var (
	// ErrTableNotFound is returned when a named table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrTableExists is returned by CreateTable when the name is taken.
	ErrTableExists = errors.New("table already exists")

	// ErrDatabaseClosed is returned when operating on a closed database.
	ErrDatabaseClosed = errors.New("database is closed")
)
