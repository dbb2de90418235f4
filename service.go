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
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/catalyst/database"
	"github.com/tomoncle/catalyst/repository"
	"github.com/tomoncle/catalyst/session"
	"github.com/tomoncle/catalyst/types"
)

type Service[T any] interface {
	// FindOrCreate returns the record matching values on keyColumns, inserting
	// one built from values when none exists.
	FindOrCreate(ctx context.Context, keyColumns []string, values types.Values) (*T, error)

	// Upsert overwrites the matching record with values or inserts a new one.
	Upsert(ctx context.Context, filters types.Filters, values types.Values) (*T, error)

	// MergeAttributes merges values into the matching record or inserts a new one.
	MergeAttributes(ctx context.Context, filters types.Filters, values types.Values) (*T, error)

	// FillIfEmpty sets only the null columns of the matching record.
	FillIfEmpty(ctx context.Context, filters types.Filters, values types.Values) (*T, error)

	// IncrementColumn adds delta to a numeric column of the matching record.
	IncrementColumn(ctx context.Context, filters types.Filters, column string, delta interface{}) (*T, error)

	// DecrementColumn subtracts delta from a numeric column of the matching record.
	DecrementColumn(ctx context.Context, filters types.Filters, column string, delta interface{}) (*T, error)

	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Count returns the number of entities that match the provided filter.
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// WithTx returns a Service running every call inside tx.
	WithTx(tx bun.IDB) Service[T]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery

	// InsertBuilder returns a Bun insert query builder for the entity.
	InsertBuilder() *bun.InsertQuery

	// UpdateBuilder returns a Bun update query builder for the entity.
	UpdateBuilder() *bun.UpdateQuery

	// DeleteBuilder returns a Bun delete query builder for the entity.
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	db   bun.IDB
	repo repository.Repository[T]
	once sync.Once
}

// NewService returns a default Service implementation bound to the global
// database connection on first use.
func NewService[T any]() Service[T] {
	return &baseServiceImpl[T]{}
}

// NewServiceWithDB returns a Service running on db, which may be a *bun.DB,
// a bun.Tx or a bun.Conn.
func NewServiceWithDB[T any](db bun.IDB) Service[T] {
	return &baseServiceImpl[T]{db: db}
}

func (s *baseServiceImpl[T]) baseRepo() repository.Repository[T] {
	s.once.Do(func() {
		if s.db == nil {
			s.db = database.GetDB()
		}
		s.repo = repository.NewRepository[T](s.db)
	})
	return s.repo
}

// newSession opens a unit of work on the bound handle.
func (s *baseServiceImpl[T]) newSession() *session.Session {
	return session.New(s.baseRepo().DB())
}

func (s *baseServiceImpl[T]) WithTx(tx bun.IDB) Service[T] {
	return NewServiceWithDB[T](tx)
}

func (s *baseServiceImpl[T]) FindOrCreate(ctx context.Context, keyColumns []string, values types.Values) (*T, error) {
	return FindOrCreate[T](ctx, s.newSession(), keyColumns, values)
}

func (s *baseServiceImpl[T]) Upsert(ctx context.Context, filters types.Filters, values types.Values) (*T, error) {
	return Upsert[T](ctx, s.newSession(), filters, values)
}

func (s *baseServiceImpl[T]) MergeAttributes(ctx context.Context, filters types.Filters, values types.Values) (*T, error) {
	return MergeAttributes[T](ctx, s.newSession(), filters, values)
}

func (s *baseServiceImpl[T]) FillIfEmpty(ctx context.Context, filters types.Filters, values types.Values) (*T, error) {
	return FillIfEmpty[T](ctx, s.newSession(), filters, values)
}

func (s *baseServiceImpl[T]) IncrementColumn(ctx context.Context, filters types.Filters, column string, delta interface{}) (*T, error) {
	return IncrementColumn[T](ctx, s.newSession(), filters, column, delta)
}

func (s *baseServiceImpl[T]) DecrementColumn(ctx context.Context, filters types.Filters, column string, delta interface{}) (*T, error) {
	return DecrementColumn[T](ctx, s.newSession(), filters, column, delta)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	return s.baseRepo().Create(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	return s.baseRepo().Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.baseRepo().GetOne(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.baseRepo().GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.baseRepo().List(ctx, filter)
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return s.baseRepo().Count(ctx, filter)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.baseRepo().Query(ctx, query, args...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	return s.baseRepo().Update(ctx, model)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	return s.baseRepo().Delete(ctx, id)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.baseRepo().Page(ctx, page)
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.baseRepo().NewSelect()
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.baseRepo().NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.baseRepo().NewUpdate()
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.baseRepo().NewDelete()
}
