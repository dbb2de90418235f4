// Package session implements a small unit of work on top of Bun: single
// record lookups by column filters, queued inserts and column updates, and
// an atomic commit.
package session
