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

package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/uptrace/bun"
)

// ErrMissingKey is returned when a key column is absent from a values mapping.
var ErrMissingKey = errors.New("key column missing from values")

// Filters maps column names to exact-match values. A nil value matches NULL.
type Filters map[string]interface{}

// Values maps column names to the values assigned on insert or update.
type Values map[string]interface{}

// Columns returns the filter columns in sorted order.
func (f Filters) Columns() []string {
	return sortedKeys(f)
}

// QueryFilter renders the filters as an AND-ed WHERE clause.
func (f Filters) QueryFilter() *QueryFilter {
	if len(f) == 0 {
		return nil
	}
	var (
		clauses []string
		args    []interface{}
	)
	for _, col := range f.Columns() {
		if f[col] == nil {
			clauses = append(clauses, "? IS NULL")
			args = append(args, bun.Ident(col))
			continue
		}
		clauses = append(clauses, "? = ?")
		args = append(args, bun.Ident(col), f[col])
	}
	return NewQueryFilter(strings.Join(clauses, " AND "), args...)
}

// String is used in log fields.
func (f Filters) String() string {
	parts := make([]string, 0, len(f))
	for _, col := range f.Columns() {
		parts = append(parts, fmt.Sprintf("%s=%v", col, f[col]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Columns returns the value columns in sorted order.
func (v Values) Columns() []string {
	return sortedKeys(v)
}

// Pick builds filters from the given keys of v. Every key must be present.
func (v Values) Pick(keys ...string) (Filters, error) {
	filters := make(Filters, len(keys))
	for _, key := range keys {
		val, ok := v[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
		}
		filters[key] = val
	}
	return filters, nil
}

func sortedKeys[M ~map[string]interface{}](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
