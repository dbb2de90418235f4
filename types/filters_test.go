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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestValuesPick(t *testing.T) {
	values := Values{"name": "Test", "value": 10}

	filters, err := values.Pick("name")
	require.NoError(t, err)
	assert.Equal(t, Filters{"name": "Test"}, filters)

	_, err = values.Pick("name", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingKey))
	assert.Contains(t, err.Error(), "missing")
}

func TestColumnsSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Filters{"c": 1, "a": 2, "b": 3}.Columns())
	assert.Equal(t, []string{"name", "value"}, Values{"value": 1, "name": "x"}.Columns())
	assert.Empty(t, Values{}.Columns())
}

func TestFiltersQueryFilter(t *testing.T) {
	assert.Nil(t, Filters{}.QueryFilter())

	qf := Filters{"name": "Test", "deleted_at": nil}.QueryFilter()
	require.NotNil(t, qf)
	assert.Equal(t, "? IS NULL AND ? = ?", qf.Schema)
	assert.Equal(t, []interface{}{bun.Ident("deleted_at"), bun.Ident("name"), "Test"}, qf.Args)
}

func TestFiltersString(t *testing.T) {
	assert.Equal(t, "{a=1, b=x}", Filters{"b": "x", "a": 1}.String())
}

func TestPageRequestDefaults(t *testing.T) {
	req := NewPageRequest(0, -1, nil)
	assert.Equal(t, 1, req.GetPage())
	assert.Equal(t, 10, req.GetPageSize())
	assert.Equal(t, 0, req.GetOffset())

	req = NewPageRequest(3, 20, nil, "id DESC")
	assert.Equal(t, 40, req.GetOffset())
	assert.Equal(t, []string{"id DESC"}, req.GetOrders())

	p := NewPagination[struct{}](req)
	p.Total = 41
	assert.Equal(t, 3, p.Pages())
}
