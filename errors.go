/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package catalyst

import (
	"errors"
	"fmt"

	"github.com/tomoncle/catalyst/mapping"
	"github.com/tomoncle/catalyst/session"
	"github.com/tomoncle/catalyst/types"
)

var (
	// Validation causes, always wrapped in *ValidationError.
	ErrMissingKey       = types.ErrMissingKey
	ErrUnknownColumn    = mapping.ErrUnknownColumn
	ErrNotNumeric       = mapping.ErrNotNumeric
	ErrInvalidValue     = mapping.ErrInvalidValue
	ErrPrimaryKeyChange = errors.New("primary key cannot be changed")

	// Lookup ambiguity.
	ErrMultipleResults = session.ErrMultipleResults

	// Record state at write time.
	ErrNullValue = mapping.ErrNullValue
	ErrOverflow  = mapping.ErrOverflow
)

// ValidationError reports arguments rejected before any store access.
type ValidationError struct {
	Model  string
	Column string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("invalid arguments for %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("invalid column %s.%s: %v", e.Model, e.Column, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidationError reports whether err, or any error it wraps, is a
// *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalid(table *mapping.Table, column string, err error) error {
	return &ValidationError{Model: table.Name, Column: column, Err: err}
}
