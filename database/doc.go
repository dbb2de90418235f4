// Package database provides configuration loading, connection management
// for MySQL, PostgreSQL and SQLite, versioned migrations of registered
// models, SQL error classification, query hooks and logging, built on Bun.
package database
