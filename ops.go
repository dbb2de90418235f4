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
	"context"
	"fmt"
	"reflect"

	"github.com/tomoncle/catalyst/database"
	"github.com/tomoncle/catalyst/mapping"
	"github.com/tomoncle/catalyst/session"
	"github.com/tomoncle/catalyst/types"
)

// Session is the unit of work the record operations run through.
type Session interface {
	// FindOneBy loads the record matching filters into model. It reports
	// false when nothing matches.
	FindOneBy(ctx context.Context, model interface{}, filters types.Filters) (bool, error)

	// Add registers model for insertion.
	Add(model interface{})

	// NullColumns reports which of columns hold NULL in the stored row of
	// model, keyed by SQL column name.
	NullColumns(ctx context.Context, model interface{}, columns ...string) (map[string]bool, error)

	// Dirty registers an update of columns on model.
	Dirty(model interface{}, columns ...string)

	// Commit applies the pending writes atomically.
	Commit(ctx context.Context) error

	// Rollback discards the pending writes. Operations call it when a
	// commit fails.
	Rollback()
}

var _ Session = (*session.Session)(nil)

// FindOrCreate returns the record whose keyColumns equal the corresponding
// entries of values, or inserts a new record built from values.
// An existing record is returned unchanged.
func FindOrCreate[T any](ctx context.Context, s Session, keyColumns []string, values types.Values) (*T, error) {
	table, err := tableFor[T]()
	if err != nil {
		return nil, err
	}
	filters, err := values.Pick(keyColumns...)
	if err != nil {
		return nil, invalid(table, "", err)
	}
	if err := validate[T](table, filters, values); err != nil {
		return nil, err
	}

	record, found, err := lookup[T](ctx, s, filters)
	if err != nil || found {
		return record, err
	}
	created := build[T](table, values)
	s.Add(created)
	if err := commit(ctx, s); err != nil {
		if !database.IsDuplicateKey(err) {
			return nil, err
		}
		// lost an insert race; the winner is the answer
		winner, found, lerr := lookup[T](ctx, s, filters)
		if lerr != nil || !found {
			return nil, err
		}
		database.GetLogger().Debug("find_or_create resolved duplicate", "model", table.Name, "filters", filters)
		return winner, nil
	}
	database.GetLogger().Debug("find_or_create inserted", "model", table.Name, "filters", filters)
	return created, nil
}

// Upsert assigns every entry of values onto the record matching filters,
// nil included, or inserts a new record built from values when none does.
// Filters are not copied onto the inserted record.
func Upsert[T any](ctx context.Context, s Session, filters types.Filters, values types.Values) (*T, error) {
	return overwrite[T](ctx, s, "upsert", filters, values)
}

// MergeAttributes merges values into the record matching filters, creating
// it from values when absent. It writes exactly as Upsert does.
func MergeAttributes[T any](ctx context.Context, s Session, filters types.Filters, values types.Values) (*T, error) {
	return overwrite[T](ctx, s, "merge_attributes", filters, values)
}

// FillIfEmpty sets the null columns of the record matching filters from
// values and leaves every other column alone. It never inserts: with no
// match it returns nil and writes nothing.
func FillIfEmpty[T any](ctx context.Context, s Session, filters types.Filters, values types.Values) (*T, error) {
	table, err := tableFor[T]()
	if err != nil {
		return nil, err
	}
	if err := validate[T](table, filters, values); err != nil {
		return nil, err
	}

	record, found, err := lookup[T](ctx, s, filters)
	if err != nil || !found {
		return nil, err
	}
	stored, err := storedNulls[T](ctx, s, table, record, values.Columns())
	if err != nil {
		return nil, err
	}
	var filled []string
	for _, name := range values.Columns() {
		col, _ := table.Column(name)
		null, err := table.IsNull(record, name)
		if err != nil {
			return nil, err
		}
		if !null && !stored[col.Name] {
			continue
		}
		if err := table.Set(record, name, values[name]); err != nil {
			return nil, err
		}
		filled = append(filled, name)
	}
	s.Dirty(record, filled...)
	if err := commit(ctx, s); err != nil {
		return nil, err
	}
	database.GetLogger().Debug("fill_if_empty", "model", table.Name, "filters", filters, "filled", filled)
	return record, nil
}

// IncrementColumn adds delta to the numeric column of the record matching
// filters. Pass 1 for a plain counter bump. With no match it returns nil.
func IncrementColumn[T any](ctx context.Context, s Session, filters types.Filters, column string, delta interface{}) (*T, error) {
	return shiftColumn[T](ctx, s, filters, column, delta, 1)
}

// DecrementColumn subtracts delta from the numeric column of the record
// matching filters. With no match it returns nil.
func DecrementColumn[T any](ctx context.Context, s Session, filters types.Filters, column string, delta interface{}) (*T, error) {
	return shiftColumn[T](ctx, s, filters, column, delta, -1)
}

func overwrite[T any](ctx context.Context, s Session, op string, filters types.Filters, values types.Values) (*T, error) {
	table, err := tableFor[T]()
	if err != nil {
		return nil, err
	}
	if err := validate[T](table, filters, values); err != nil {
		return nil, err
	}

	record, found, err := lookup[T](ctx, s, filters)
	if err != nil {
		return nil, err
	}
	if !found {
		created := build[T](table, values)
		s.Add(created)
		if err := commit(ctx, s); err != nil {
			return nil, err
		}
		database.GetLogger().Debug(op+" inserted", "model", table.Name, "filters", filters)
		return created, nil
	}

	columns, err := assignAll[T](table, record, values)
	if err != nil {
		return nil, err
	}
	s.Dirty(record, columns...)
	if err := commit(ctx, s); err != nil {
		return nil, err
	}
	database.GetLogger().Debug(op+" updated", "model", table.Name, "filters", filters, "columns", columns)
	return record, nil
}

func shiftColumn[T any](ctx context.Context, s Session, filters types.Filters, column string, delta interface{}, sign int) (*T, error) {
	table, err := tableFor[T]()
	if err != nil {
		return nil, err
	}
	col, err := table.Column(column)
	if err != nil {
		return nil, invalid(table, column, err)
	}
	if !col.IsNumeric() {
		return nil, invalid(table, col.Name, ErrNotNumeric)
	}
	if col.PK {
		return nil, invalid(table, col.Name, ErrPrimaryKeyChange)
	}
	if err := col.CheckDelta(delta); err != nil {
		return nil, invalid(table, col.Name, err)
	}
	if err := validate[T](table, filters, nil); err != nil {
		return nil, err
	}

	record, found, err := lookup[T](ctx, s, filters)
	if err != nil || !found {
		return nil, err
	}
	stored, err := storedNulls[T](ctx, s, table, record, []string{col.Name})
	if err != nil {
		return nil, err
	}
	if stored[col.Name] {
		return nil, fmt.Errorf("%w: %s.%s", ErrNullValue, table.Name, col.Name)
	}
	if err := table.Shift(record, col.Name, delta, sign); err != nil {
		return nil, err
	}
	s.Dirty(record, col.Name)
	if err := commit(ctx, s); err != nil {
		return nil, err
	}
	database.GetLogger().Debug("shift column", "model", table.Name, "column", col.Name, "delta", delta, "sign", sign)
	return record, nil
}

// commit applies the pending writes and discards them when that fails, so a
// shared session does not carry them into its next commit.
func commit(ctx context.Context, s Session) error {
	if err := s.Commit(ctx); err != nil {
		s.Rollback()
		return err
	}
	return nil
}

// storedNulls asks the store about the named columns that read NULL back
// as a zero value. Other columns are judged on the loaded record alone.
func storedNulls[T any](ctx context.Context, s Session, table *mapping.Table, record *T, names []string) (map[string]bool, error) {
	var hidden []string
	for _, name := range names {
		if col, err := table.Column(name); err == nil && col.HidesNull() {
			hidden = append(hidden, col.Name)
		}
	}
	if len(hidden) == 0 {
		return nil, nil
	}
	return s.NullColumns(ctx, record, hidden...)
}

func tableFor[T any]() (*mapping.Table, error) {
	table, err := mapping.For[T]()
	if err != nil {
		return nil, &ValidationError{Model: reflect.TypeOf((*T)(nil)).Elem().String(), Err: err}
	}
	return table, nil
}

// validate checks every filter and value column against the record type and
// every value against its column type, without touching the store.
func validate[T any](table *mapping.Table, filters types.Filters, values types.Values) error {
	for _, name := range filters.Columns() {
		if _, err := table.Column(name); err != nil {
			return invalid(table, name, err)
		}
	}
	scratch := new(T)
	for _, name := range values.Columns() {
		if err := table.Set(scratch, name, values[name]); err != nil {
			return invalid(table, name, err)
		}
	}
	return nil
}

func lookup[T any](ctx context.Context, s Session, filters types.Filters) (*T, bool, error) {
	record := new(T)
	found, err := s.FindOneBy(ctx, record, filters)
	if err != nil || !found {
		return nil, false, err
	}
	return record, true, nil
}

// build makes a record from already validated values.
func build[T any](table *mapping.Table, values types.Values) *T {
	record := new(T)
	for _, name := range values.Columns() {
		_ = table.Set(record, name, values[name])
	}
	return record
}

// assignAll overwrites record with values and returns the columns to write.
// Primary key entries must repeat the stored key.
func assignAll[T any](table *mapping.Table, record *T, values types.Values) ([]string, error) {
	for _, name := range values.Columns() {
		col, _ := table.Column(name)
		if !col.PK {
			continue
		}
		scratch := new(T)
		_ = table.Set(scratch, name, values[name])
		want, _ := table.Get(scratch, name)
		have, _ := table.Get(record, name)
		if !reflect.DeepEqual(want, have) {
			return nil, invalid(table, col.Name, ErrPrimaryKeyChange)
		}
	}

	var columns []string
	for _, name := range values.Columns() {
		col, _ := table.Column(name)
		if col.PK {
			continue
		}
		if err := table.Set(record, name, values[name]); err != nil {
			return nil, err
		}
		columns = append(columns, col.Name)
	}
	return columns, nil
}
