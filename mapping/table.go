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
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"
)

var (
	ErrNotStruct     = errors.New("record type must be a struct")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotNumeric    = errors.New("column must be a numeric type")
	ErrNullValue     = errors.New("column value is null")
	ErrInvalidValue  = errors.New("value is not assignable to column")
	ErrOverflow      = errors.New("numeric overflow")
)

var baseModelType = reflect.TypeOf(bun.BaseModel{})

// Column describes one mapped struct field.
type Column struct {
	Name          string // SQL name
	GoName        string
	Type          reflect.Type
	Kind          Kind
	SQLType       string
	PK            bool
	AutoIncrement bool
	NullZero      bool
	NotNull       bool
	Unique        bool

	index []int
}

// IsNumeric reports whether increment/decrement is defined for the column.
func (c *Column) IsNumeric() bool { return c.Kind.Numeric() }

// Nullable reports whether the Go field can represent NULL.
func (c *Column) Nullable() bool {
	switch c.Type.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return c.NullZero || isNullWrapper(c.Type)
}

// HidesNull reports whether a stored NULL reads back as the zero value of
// the field, so only the store can tell NULL from zero.
func (c *Column) HidesNull() bool {
	return !c.PK && !c.NotNull && !c.Nullable()
}

// Table is the column metadata of a record type.
type Table struct {
	Name string
	Type reflect.Type

	columns []*Column
	byName  map[string]*Column
	byGo    map[string]*Column
	pks     []*Column
}

// Columns returns the columns in declaration order.
func (t *Table) Columns() []*Column { return t.columns }

// PKs returns the primary key columns.
func (t *Table) PKs() []*Column { return t.pks }

// Column resolves a column by SQL name, then by Go field name.
func (t *Table) Column(name string) (*Column, error) {
	if c, ok := t.byName[name]; ok {
		return c, nil
	}
	if c, ok := t.byGo[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, name)
}

// CheckColumns fails on the first name that is not a column of t.
func (t *Table) CheckColumns(names ...string) error {
	for _, name := range names {
		if _, err := t.Column(name); err != nil {
			return err
		}
	}
	return nil
}

var (
	tablesMu sync.RWMutex
	tables   = map[reflect.Type]*Table{}
)

// For returns the table of record type T.
func For[T any]() (*Table, error) {
	return TableOf(reflect.TypeOf((*T)(nil)).Elem())
}

// TableOf returns the table of typ, resolving and caching it on first use.
func TableOf(typ reflect.Type) (*Table, error) {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	tablesMu.RLock()
	t, ok := tables[typ]
	tablesMu.RUnlock()
	if ok {
		return t, nil
	}

	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, typ)
	}
	t = &Table{
		Name:   inflection.Plural(Underscore(typ.Name())),
		Type:   typ,
		byName: map[string]*Column{},
		byGo:   map[string]*Column{},
	}
	t.collect(typ, nil, "")

	tablesMu.Lock()
	if cached, ok := tables[typ]; ok {
		t = cached
	} else {
		tables[typ] = t
	}
	tablesMu.Unlock()
	return t, nil
}

func (t *Table) collect(typ reflect.Type, parent []int, prefix string) {
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		tag := sf.Tag.Get("bun")
		if tag == "-" {
			continue
		}
		index := append(append([]int{}, parent...), sf.Index...)

		if sf.Anonymous {
			if sf.Type == baseModelType {
				if name := tagOption(tag, "table"); name != "" {
					t.Name = strings.Trim(name, `"`)
				}
				continue
			}
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				t.collect(ft, index, prefix)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}
		// scanonly fields are read by bun but never written
		if hasOption(tag, "rel") || hasOption(tag, "m2m") || hasOption(tag, "scanonly") {
			continue
		}
		if embed, ok := lookupOption(tag, "embed"); ok {
			ft := sf.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				t.collect(ft, index, prefix+embed)
			}
			continue
		}

		name := strings.TrimSpace(splitTag(tag)[0])
		if name == "" || strings.Contains(name, ":") {
			name = Underscore(sf.Name)
		}
		if column := tagOption(tag, "column"); column != "" {
			name = column
		}
		col := &Column{
			Name:          prefix + name,
			GoName:        sf.Name,
			Type:          sf.Type,
			Kind:          kindOf(sf.Type),
			SQLType:       tagOption(tag, "type"),
			PK:            hasOption(tag, "pk"),
			AutoIncrement: hasOption(tag, "autoincrement") || hasOption(tag, "identity"),
			NullZero:      hasOption(tag, "nullzero"),
			NotNull:       hasOption(tag, "notnull"),
			Unique:        hasOption(tag, "unique"),
			index:         index,
		}
		if _, dup := t.byName[col.Name]; dup {
			continue
		}
		t.columns = append(t.columns, col)
		t.byName[col.Name] = col
		t.byGo[col.GoName] = col
		if col.PK {
			t.pks = append(t.pks, col)
		}
	}
}

func lookupOption(tag, key string) (string, bool) {
	parts := splitTag(tag)
	if !strings.Contains(parts[0], ":") {
		parts = parts[1:]
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == key {
			return "", true
		}
		if strings.HasPrefix(p, key+":") {
			return strings.TrimPrefix(p, key+":"), true
		}
	}
	return "", false
}

// splitTag splits on commas outside parentheses so "type:decimal(10,2)"
// stays one option.
func splitTag(tag string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(tag); i++ {
		switch tag[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, tag[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, tag[start:])
}

func hasOption(tag, key string) bool {
	_, ok := lookupOption(tag, key)
	return ok
}

func tagOption(tag, key string) string {
	v, _ := lookupOption(tag, key)
	return v
}

// Underscore converts a Go identifier to the snake_case name bun derives
// for untagged fields, e.g. "UserID" to "user_id".
func Underscore(s string) string {
	r := make([]byte, 0, len(s)+5)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) {
			if i > 0 && i+1 < len(s) && (isLower(s[i-1]) || isLower(s[i+1])) {
				r = append(r, '_', c+32)
			} else {
				r = append(r, c+32)
			}
		} else {
			r = append(r, c)
		}
	}
	return string(r)
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
