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
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type Shelf struct {
	bun.BaseModel `bun:"table:shelves"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type Book struct {
	bun.BaseModel `bun:"table:books"`

	ID      int64  `bun:"id,pk,autoincrement"`
	ShelfID int64  `bun:"shelf_id"`
	Title   string `bun:"title,notnull,unique"`
}

func init() {
	RegisterModel((*Book)(nil), 10)
	RegisterModel((*Shelf)(nil), 0)
}

func newMemoryDB(t *testing.T) *bun.DB {
	t.Helper()
	manager := NewDatabaseManager(&ConnectionConfig{Type: "sqlite", DBName: MemoryDBName})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })
	return manager.GetDB()
}

func tableMissing(t *testing.T, db bun.IDB, model interface{}) bool {
	t.Helper()
	_, err := db.NewSelect().Model(model).Count(context.Background())
	if err == nil {
		return false
	}
	_, class := IsSqlError(err)
	require.Equal(t, NoTableErr, class, err.Error())
	return true
}

func TestModelRegistryOrder(t *testing.T) {
	r := newModelRegistry()
	r.Register(NewModelAdapter((*Book)(nil), 10))
	r.Register(NewModelAdapter((*Shelf)(nil), 0))
	r.Register(NewModelAdapter(&Book{}, 5))

	models := r.Models()
	require.Len(t, models, 2)
	assert.IsType(t, (*Shelf)(nil), models[0].Instance())
	assert.Equal(t, 5, models[1].Priority())

	instances := RegisteredModelInstances()
	require.Len(t, instances, 2)
	assert.IsType(t, (*Shelf)(nil), instances[0])
	assert.IsType(t, (*Book)(nil), instances[1])
}

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	mm := NewMigrationManager(db, nil)

	require.NoError(t, mm.RunMigrations(ctx))
	assert.False(t, tableMissing(t, db, (*Shelf)(nil)))
	assert.False(t, tableMissing(t, db, (*Book)(nil)))

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_base_tables", applied[0].Name)
	assert.False(t, applied[0].AppliedAt.IsZero())

	// applied versions are skipped
	require.NoError(t, NewMigrationManager(db, nil).RunMigrations(ctx))
	applied, err = mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestAddMigration(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	mm := NewMigrationManager(db, nil)

	var order []string
	require.NoError(t, mm.AddMigration(MigrationItem{
		Version: "002",
		Name:    "create_notes",
		Up: func(ctx context.Context, db bun.IDB) error {
			order = append(order, "002")
			_, err := db.ExecContext(ctx, "CREATE TABLE notes (id INTEGER PRIMARY KEY)")
			return err
		},
	}))
	assert.Error(t, mm.AddMigration(MigrationItem{Version: "002", Up: func(context.Context, bun.IDB) error { return nil }}))
	assert.Error(t, mm.AddMigration(MigrationItem{Version: "003"}))

	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))
	assert.Equal(t, []string{"002"}, order)

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "002", applied[1].Version)

	assert.ErrorContains(t, mm.RollbackMigration(ctx, "002"), "cannot be rolled back")
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	mm := NewMigrationManager(db, nil)

	assert.ErrorContains(t, mm.RollbackMigration(ctx, "999"), "unknown migration")
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RollbackMigration(ctx, "001"))

	assert.True(t, tableMissing(t, db, (*Shelf)(nil)))
	assert.True(t, tableMissing(t, db, (*Book)(nil)))
	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	assert.ErrorContains(t, mm.RollbackMigration(ctx, "001"), "not applied")

	// rolled back versions run again
	require.NoError(t, mm.RunMigrations(ctx))
	assert.False(t, tableMissing(t, db, (*Book)(nil)))
}

func TestRunMigrationsWithoutDB(t *testing.T) {
	assert.Error(t, NewMigrationManager(nil, nil).RunMigrations(context.Background()))
}
