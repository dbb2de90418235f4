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

package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tomoncle/catalyst/database"
	"github.com/tomoncle/catalyst/mapping"
	"github.com/tomoncle/catalyst/types"
)

var (
	ErrMultipleResults = errors.New("multiple records match filters")
	ErrNoPrimaryKey    = errors.New("record type has no primary key")
)

type writeKind int

const (
	writeInsert writeKind = iota
	writeUpdate
)

func (k writeKind) String() string {
	if k == writeInsert {
		return "insert"
	}
	return "update"
}

type pendingWrite struct {
	kind    writeKind
	model   interface{}
	columns []string
}

// Session is a unit of work over a bun handle. Lookups run immediately,
// writes are queued until Commit.
//
// A *bun.DB handle gives every Commit its own transaction. A bun.Tx handle
// keeps the caller in charge: Commit releases a savepoint and the outer
// transaction decides durability.
type Session struct {
	id     string
	db     bun.IDB
	logger database.Logger

	mu      sync.Mutex
	pending []*pendingWrite
}

// New opens a session on db.
func New(db bun.IDB) *Session {
	return &Session{
		id:     uuid.NewString(),
		db:     db,
		logger: database.GetLogger(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) DB() bun.IDB { return s.db }

func (s *Session) SetLogger(logger database.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// FindOneBy loads the single record matching filters into model, which must
// be a non-nil struct pointer. It reports false when nothing matches and fails
// with ErrMultipleResults when more than one record does.
func (s *Session) FindOneBy(ctx context.Context, model interface{}, filters types.Filters) (bool, error) {
	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return false, fmt.Errorf("%w: got %T", mapping.ErrNotStruct, model)
	}
	table, err := mapping.TableOf(rv.Type())
	if err != nil {
		return false, err
	}
	where, err := normalize(table, filters)
	if err != nil {
		return false, err
	}

	rows := reflect.New(reflect.SliceOf(rv.Type()))
	query := s.db.NewSelect().Model(rows.Interface()).Limit(2)
	if qf := where.QueryFilter(); qf != nil {
		query = query.Where(qf.Schema, qf.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		s.logger.Warn("session lookup failed", "session", s.id, "table", table.Name, "error", err)
		return false, err
	}

	switch n := rows.Elem().Len(); n {
	case 0:
		s.logger.Debug("session lookup", "session", s.id, "table", table.Name, "filters", where, "found", false)
		return false, nil
	case 1:
		rv.Elem().Set(rows.Elem().Index(0).Elem())
		s.logger.Debug("session lookup", "session", s.id, "table", table.Name, "filters", where, "found", true)
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s %s", ErrMultipleResults, table.Name, where)
	}
}

// NullColumns reports which of columns hold NULL in the stored row of model,
// matched by primary key. It is how callers tell NULL from zero for fields
// whose Go type cannot hold NULL. Keys are SQL column names.
func (s *Session) NullColumns(ctx context.Context, model interface{}, columns ...string) (map[string]bool, error) {
	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("%w: got %T", mapping.ErrNotStruct, model)
	}
	table, err := mapping.TableOf(rv.Type())
	if err != nil {
		return nil, err
	}
	nulls := make(map[string]bool, len(columns))
	if len(columns) == 0 {
		return nulls, nil
	}
	if len(table.PKs()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
	}

	names := make([]string, 0, len(columns))
	for _, name := range appendUnique(nil, columns...) {
		col, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		names = append(names, col.Name)
	}
	flags := make([]bool, len(names))
	dest := make([]interface{}, len(names))
	query := s.db.NewSelect().Model(model).WherePK()
	for i, name := range names {
		query = query.ColumnExpr("? IS NULL", bun.Ident(name))
		dest[i] = &flags[i]
	}
	if err := query.Scan(ctx, dest...); err != nil {
		s.logger.Warn("session null check failed", "session", s.id, "table", table.Name, "error", err)
		return nil, err
	}
	for i, name := range names {
		nulls[name] = flags[i]
	}
	return nulls, nil
}

// normalize maps filter keys to SQL column names and typed nils to nil.
func normalize(table *mapping.Table, filters types.Filters) (types.Filters, error) {
	out := make(types.Filters, len(filters))
	for _, name := range filters.Columns() {
		col, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		v := filters[name]
		if rv := reflect.ValueOf(v); v != nil && rv.Kind() == reflect.Ptr && rv.IsNil() {
			v = nil
		}
		out[col.Name] = v
	}
	return out, nil
}

// Add queues model for insertion.
func (s *Session) Add(model interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.pending {
		if w.model == model {
			return
		}
	}
	s.pending = append(s.pending, &pendingWrite{kind: writeInsert, model: model})
}

// Dirty queues an update of columns on model, matched by primary key.
// Columns accumulate across calls. Models already queued for insertion are
// written in full and ignore Dirty.
func (s *Session) Dirty(model interface{}, columns ...string) {
	if len(columns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.pending {
		if w.model != model {
			continue
		}
		if w.kind == writeUpdate {
			w.columns = appendUnique(w.columns, columns...)
		}
		return
	}
	s.pending = append(s.pending, &pendingWrite{
		kind:    writeUpdate,
		model:   model,
		columns: appendUnique(nil, columns...),
	})
}

// Pending returns the number of queued writes.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Commit applies the queued writes in order inside one transaction and
// clears the queue whatever the outcome. Store errors are returned as is.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, w := range pending {
			if err := s.apply(ctx, tx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_, class := database.IsSqlError(err)
		s.logger.Warn("session commit rolled back", "session", s.id, "writes", len(pending), "class", class, "error", err)
		return err
	}
	s.logger.Debug("session committed", "session", s.id, "writes", len(pending))
	return nil
}

func (s *Session) apply(ctx context.Context, tx bun.Tx, w *pendingWrite) error {
	switch w.kind {
	case writeInsert:
		_, err := tx.NewInsert().Model(w.model).Exec(ctx)
		return err
	case writeUpdate:
		table, err := mapping.TableOf(reflect.TypeOf(w.model))
		if err != nil {
			return err
		}
		if len(table.PKs()) == 0 {
			return fmt.Errorf("%w: %s", ErrNoPrimaryKey, table.Name)
		}
		columns := make([]string, 0, len(w.columns))
		for _, name := range w.columns {
			col, err := table.Column(name)
			if err != nil {
				return err
			}
			columns = append(columns, col.Name)
		}
		_, err = tx.NewUpdate().Model(w.model).Column(columns...).WherePK().Exec(ctx)
		return err
	}
	return fmt.Errorf("unsupported write %s", w.kind)
}

// Rollback discards the queued writes.
func (s *Session) Rollback() {
	s.mu.Lock()
	n := len(s.pending)
	s.pending = nil
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug("session rolled back", "session", s.id, "discarded", n)
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		seen := false
		for _, d := range dst {
			if d == item {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, item)
		}
	}
	return dst
}
