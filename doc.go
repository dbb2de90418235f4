// Package catalyst adds record-level write helpers to Bun models:
// find-or-create, upsert, fill-if-empty, attribute merging and numeric
// column increments. Each helper runs a single lookup and an atomic commit
// through a Session, and a generic Service wraps them together with the
// repository CRUD calls.
package catalyst
