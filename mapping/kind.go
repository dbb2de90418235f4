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

package mapping

import (
	"database/sql"
	"reflect"

	"github.com/cockroachdb/apd/v3"
)

// Kind is the logical type class of a column.
type Kind int

const (
	KindOther Kind = iota
	KindInteger
	KindUnsigned
	KindFloat
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindUnsigned:
		return "unsigned"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	default:
		return "other"
	}
}

// Numeric reports whether arithmetic is defined for the kind.
func (k Kind) Numeric() bool { return k != KindOther }

var (
	decimalType = reflect.TypeOf(apd.Decimal{})

	// Wrappers whose first field holds the value and whose Valid field
	// marks NULL.
	nullWrappers = map[reflect.Type]struct{}{
		reflect.TypeOf(sql.NullInt64{}):   {},
		reflect.TypeOf(sql.NullInt32{}):   {},
		reflect.TypeOf(sql.NullInt16{}):   {},
		reflect.TypeOf(sql.NullByte{}):    {},
		reflect.TypeOf(sql.NullFloat64{}): {},
		reflect.TypeOf(apd.NullDecimal{}): {},
	}
)

func isNullWrapper(t reflect.Type) bool {
	_, ok := nullWrappers[t]
	return ok
}

func kindOf(t reflect.Type) Kind {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == decimalType {
		return KindDecimal
	}
	if isNullWrapper(t) {
		return kindOf(t.Field(0).Type)
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInteger
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUnsigned
	case reflect.Float32, reflect.Float64:
		return KindFloat
	}
	return KindOther
}
