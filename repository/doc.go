// Package repository provides a generic repository abstraction built on Bun
// for CRUD operations, counting, pagination and dialect-native upserts. It
// runs on any bun.IDB, so the same code serves plain connections and
// transactions.
package repository
