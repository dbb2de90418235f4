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
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/tomoncle/catalyst/database"
	"github.com/tomoncle/catalyst/mapping"
	"github.com/tomoncle/catalyst/types"
)

type Widget struct {
	bun.BaseModel `bun:"table:widgets"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name,notnull,unique"`
	Value int64   `bun:"value"`
	Note  *string `bun:"note"`
}

type Tag struct {
	Label string
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*Widget)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func seed(t *testing.T, db *bun.DB, widgets ...*Widget) {
	t.Helper()
	_, err := db.NewInsert().Model(&widgets).Exec(context.Background())
	require.NoError(t, err)
}

func count(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*Widget)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSessionID(t *testing.T) {
	s := New(newTestDB(t))
	_, err := uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.NotEqual(t, s.ID(), New(s.DB()).ID())
}

func TestFindOneBy(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed(t, db, &Widget{Name: "alpha", Value: 1}, &Widget{Name: "beta", Value: 2})
	s := New(db)

	var w Widget
	found, err := s.FindOneBy(ctx, &w, types.Filters{"name": "beta"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), w.Value)
	assert.NotZero(t, w.ID)

	var byGoName Widget
	found, err = s.FindOneBy(ctx, &byGoName, types.Filters{"Name": "alpha", "Value": 1})
	require.NoError(t, err)
	assert.True(t, found)

	var missing Widget
	found, err = s.FindOneBy(ctx, &missing, types.Filters{"name": "gamma"})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, missing.ID)
}

func TestFindOneByNullFilter(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	note := "noted"
	seed(t, db, &Widget{Name: "alpha", Note: &note}, &Widget{Name: "beta"})
	s := New(db)

	var w Widget
	found, err := s.FindOneBy(ctx, &w, types.Filters{"note": nil})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "beta", w.Name)

	var typedNil Widget
	found, err = s.FindOneBy(ctx, &typedNil, types.Filters{"note": (*string)(nil)})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "beta", typedNil.Name)
}

func TestFindOneByMultipleResults(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, &Widget{Name: "alpha", Value: 7}, &Widget{Name: "beta", Value: 7})

	var w Widget
	found, err := New(db).FindOneBy(context.Background(), &w, types.Filters{"value": 7})
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrMultipleResults))
}

func TestFindOneByRejectsBadInput(t *testing.T) {
	s := New(newTestDB(t))
	ctx := context.Background()

	var w Widget
	_, err := s.FindOneBy(ctx, &w, types.Filters{"colour": "red"})
	assert.True(t, errors.Is(err, mapping.ErrUnknownColumn))

	_, err = s.FindOneBy(ctx, w, types.Filters{"name": "x"})
	assert.True(t, errors.Is(err, mapping.ErrNotStruct))
}

func TestAddAndCommit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)

	w := &Widget{Name: "alpha", Value: 10}
	s.Add(w)
	s.Add(w)
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, s.Pending())
	assert.NotZero(t, w.ID)
	assert.Equal(t, 1, count(t, db))

	// nothing queued
	require.NoError(t, s.Commit(ctx))
}

func TestDirtyUpdatesOnlyListedColumns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed(t, db, &Widget{Name: "alpha", Value: 1})
	s := New(db)

	var w Widget
	found, err := s.FindOneBy(ctx, &w, types.Filters{"name": "alpha"})
	require.NoError(t, err)
	require.True(t, found)

	w.Name = "renamed"
	w.Value = 42
	s.Dirty(&w, "value")
	s.Dirty(&w, "Value")
	s.Dirty(&w)
	assert.Equal(t, 1, s.Pending())
	require.NoError(t, s.Commit(ctx))

	var stored Widget
	require.NoError(t, db.NewSelect().Model(&stored).Where("id = ?", w.ID).Scan(ctx))
	assert.Equal(t, "alpha", stored.Name)
	assert.Equal(t, int64(42), stored.Value)
}

func TestDirtyIgnoredForPendingInsert(t *testing.T) {
	s := New(newTestDB(t))
	w := &Widget{Name: "alpha"}
	s.Add(w)
	s.Dirty(w, "value")
	assert.Equal(t, 1, s.Pending())
	require.NoError(t, s.Commit(context.Background()))
}

func TestRollbackDiscardsPending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := New(db)

	s.Add(&Widget{Name: "alpha"})
	s.Rollback()
	assert.Equal(t, 0, s.Pending())
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 0, count(t, db))
}

func TestNullColumns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.ExecContext(ctx, "INSERT INTO widgets (name, value) VALUES ('alpha', NULL), ('beta', 0)")
	require.NoError(t, err)
	s := New(db)

	alpha := new(Widget)
	found, err := s.FindOneBy(ctx, alpha, types.Filters{"name": "alpha"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), alpha.Value)

	nulls, err := s.NullColumns(ctx, alpha, "value", "Name", "note", "value")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"value": true, "name": false, "note": true}, nulls)

	beta := new(Widget)
	found, err = s.FindOneBy(ctx, beta, types.Filters{"name": "beta"})
	require.NoError(t, err)
	require.True(t, found)
	nulls, err = s.NullColumns(ctx, beta, "value")
	require.NoError(t, err)
	assert.False(t, nulls["value"])

	nulls, err = s.NullColumns(ctx, beta)
	require.NoError(t, err)
	assert.Empty(t, nulls)

	_, err = s.NullColumns(ctx, beta, "missing")
	assert.True(t, errors.Is(err, mapping.ErrUnknownColumn))
	_, err = s.NullColumns(ctx, &Tag{Label: "x"}, "label")
	assert.True(t, errors.Is(err, ErrNoPrimaryKey))
	_, err = s.NullColumns(ctx, Widget{}, "value")
	assert.True(t, errors.Is(err, mapping.ErrNotStruct))
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed(t, db, &Widget{Name: "taken"})
	s := New(db)

	s.Add(&Widget{Name: "fresh"})
	s.Add(&Widget{Name: "taken"})
	err := s.Commit(ctx)
	require.Error(t, err)
	assert.True(t, database.IsDuplicateKey(err))
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, 1, count(t, db))
}

func TestCommitWithoutPrimaryKey(t *testing.T) {
	s := New(newTestDB(t))
	s.Dirty(&Tag{Label: "x"}, "label")
	err := s.Commit(context.Background())
	assert.True(t, errors.Is(err, ErrNoPrimaryKey))
}

func TestCommitInsideCallerTransaction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	abort := errors.New("abort")

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		s := New(tx)
		s.Add(&Widget{Name: "inner"})
		if err := s.Commit(ctx); err != nil {
			return err
		}
		var w Widget
		found, err := s.FindOneBy(ctx, &w, types.Filters{"name": "inner"})
		if err != nil {
			return err
		}
		assert.True(t, found)
		return abort
	})
	assert.ErrorIs(t, err, abort)
	assert.Equal(t, 0, count(t, db))
}

func TestCommitPropagatesStoreError(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	boom := errors.New("connection reset by peer")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "widgets"`)).WillReturnError(boom)
	mock.ExpectRollback()

	s := New(db)
	s.Add(&Widget{Name: "alpha"})
	err = s.Commit(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}
