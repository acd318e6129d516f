// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package serializer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type descriptor struct {
	Type string `json:"type"`
	Kind string `json:"metricKind"`
	Unit string
}

type lease struct {
	Holder string  `json:"holder"`
	Time   float64 `json:"time"`
	Meta   map[string]string
	hidden string
}

func TestFormatIsUnknown(t *testing.T) {
	for _, f := range SupportedFormats() {
		assert.False(t, Format(f).IsUnknown(), f)
	}
	assert.True(t, Format("xml").IsUnknown())
	assert.True(t, Format("").IsUnknown())
}

func TestNewWriterDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter("xml", &buf)
	require.NoError(t, w.Serialize(context.Background(), map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a":1}`, buf.String())
}

func TestSerialize(t *testing.T) {
	rec := lease{Holder: "node-a:42", Time: 1.5, Meta: map[string]string{"zone": "b"}, hidden: "x"}

	tests := []struct {
		name   string
		format Format
		value  any
		want   []string
		absent []string
	}{
		{
			name:   "json",
			format: FormatJSON,
			value:  rec,
			want:   []string{`"holder": "node-a:42"`, `"time": 1.5`},
		},
		{
			name:   "yaml",
			format: FormatYAML,
			value:  rec,
			want:   []string{"holder: node-a:42", "time: 1.5"},
		},
		{
			name:   "table flattens structs",
			format: FormatTable,
			value:  &rec,
			want:   []string{"FIELD", "holder", "node-a:42", "Meta.zone"},
			absent: []string{"hidden"},
		},
		{
			name:   "table rows for struct slices",
			format: FormatTable,
			value: []descriptor{
				{Type: "compute.googleapis.com/instance/cpu/utilization", Kind: "GAUGE", Unit: "10^2.%"},
				{Type: "pubsub.googleapis.com/topic/send_message_operation_count", Kind: "DELTA", Unit: "1"},
			},
			want:   []string{"TYPE", "METRICKIND", "UNIT", "GAUGE", "DELTA"},
			absent: []string{"[0]"},
		},
		{
			name:   "table scalar",
			format: FormatTable,
			value:  "released",
			want:   []string{"value", "released"},
		},
		{
			name:   "table nil",
			format: FormatTable,
			value:  (*lease)(nil),
			want:   []string{"<empty>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewWriter(tt.format, &buf).Serialize(context.Background(), tt.value))
			out := buf.String()
			for _, s := range tt.want {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestTableRowsAlign(t *testing.T) {
	var buf bytes.Buffer
	rows := []descriptor{{Type: "a", Kind: "GAUGE", Unit: "1"}, {Type: "bbbb", Kind: "DELTA", Unit: "s"}}
	require.NoError(t, NewWriter(FormatTable, &buf).Serialize(context.Background(), rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"TYPE", "METRICKIND", "UNIT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"bbbb", "DELTA", "s"}, strings.Fields(lines[2]))
	assert.Equal(t, strings.Index(lines[0], "METRICKIND"), strings.Index(lines[2], "DELTA"))
}

func TestNewFileWriterOrStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	w := NewFileWriterOrStdout(FormatYAML, path)
	require.NoError(t, w.Serialize(context.Background(), map[string]string{"oldest": "2016-01-01T00:00:00"}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "oldest:")
	assert.Contains(t, string(data), "2016-01-01T00:00:00")

	stdout := NewFileWriterOrStdout(FormatJSON, "  ")
	assert.Equal(t, os.Stdout, stdout.output)
	assert.NoError(t, stdout.Close())

	fallback := NewFileWriterOrStdout(FormatJSON, filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.Equal(t, os.Stdout, fallback.output)
}
