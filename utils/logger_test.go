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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("verbose"))
}

func TestNewLoggerIsRegistered(t *testing.T) {
	l := NewLogger("utils-test")
	assert.Same(t, l, NewLogger("utils-test"))

	assert.True(t, SetLoggerLevel("utils-test", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("missing-logger", "debug"))
}

func TestJSONLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&JSONLogFormatter{LoggerName: "CATALYST"})

	l.WithFields(logrus.Fields{"table": "widgets", "error": errors.New("boom")}).Warn("commit failed")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "CATALYST", rec["logger"])
	assert.Equal(t, "commit failed", rec["message"])
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, "widgets", fields["table"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLog4jColorFormatterRendersFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&Log4jColorFormatter{LoggerName: "CATALYST", NameWidth: 10})

	l.WithFields(logrus.Fields{"b": 2, "a": 1}).Info("hello")
	out := buf.String()
	assert.Contains(t, out, "hello a=1 b=2")
	assert.Contains(t, out, "CATALYST")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("CATALYST_TEST_STR", "x")
	t.Setenv("CATALYST_TEST_BOOL", "nope")
	assert.Equal(t, "x", EnvDefaultString("CATALYST_TEST_STR", "y"))
	assert.Equal(t, "y", EnvDefaultString("CATALYST_TEST_UNSET", "y"))
	assert.True(t, EnvDefaultBool("CATALYST_TEST_BOOL", true))
}
