// Package mapping resolves Bun model structs into tables and columns, and
// reads, writes and shifts column values with type checks.
package mapping
