// Package types holds the filter, value and pagination types shared by the
// record operations, the session and the repository.
package types
