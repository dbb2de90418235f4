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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) record(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		m[fmt.Sprint(fields[i])] = fields[i+1]
	}
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: m})
}

func (l *captureLogger) SetLevel(LogLevel) {}

func (l *captureLogger) Debug(msg string, fields ...interface{}) { l.record("debug", msg, fields) }
func (l *captureLogger) Info(msg string, fields ...interface{})  { l.record("info", msg, fields) }
func (l *captureLogger) Warn(msg string, fields ...interface{})  { l.record("warn", msg, fields) }
func (l *captureLogger) Error(msg string, fields ...interface{}) { l.record("error", msg, fields) }

func (l *captureLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

func TestSlowQueryHook(t *testing.T) {
	logger := &captureLogger{}
	hook := NewSlowQueryHook(100*time.Millisecond, logger)
	ctx := context.Background()

	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	assert.Empty(t, logger.byLevel("warn"))

	hook.AfterQuery(ctx, &bun.QueryEvent{
		Query:     "UPDATE widgets SET value = 1",
		StartTime: time.Now().Add(-time.Second),
		Err:       errors.New("failed"),
	})
	assert.Empty(t, logger.byLevel("warn"))

	hook.AfterQuery(ctx, &bun.QueryEvent{
		Query:     "UPDATE widgets SET value = 1",
		StartTime: time.Now().Add(-time.Second),
	})
	warns := logger.byLevel("warn")
	require.Len(t, warns, 1)
	assert.Equal(t, "Database slow query detected", warns[0].msg)
	assert.Equal(t, "UPDATE", warns[0].fields["operation"])
	assert.Equal(t, 100*time.Millisecond, warns[0].fields["slow_threshold"])
	assert.Contains(t, warns[0].fields["query"], "UPDATE widgets SET value = 1")
}

func TestSlowQueryHookOnConnection(t *testing.T) {
	logger := &captureLogger{}
	db := newMemoryDB(t)
	db.AddQueryHook(NewSlowQueryHook(-time.Nanosecond, logger))

	var n int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &n))
	warns := logger.byLevel("warn")
	require.NotEmpty(t, warns)
	assert.Equal(t, "SELECT", warns[0].fields["operation"])
}
