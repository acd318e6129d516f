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

package sink

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// BackendStream is the name of the local stream backend.
const BackendStream = "stream"

var (
	cdataEscaper = strings.NewReplacer("]]>", "]]&gt;")
	fieldEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// StreamWriter writes framed events to a local line-oriented transport,
// usually the stdout pipe of a modular input host.
type StreamWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStreamWriter writes to w. The writer is flushed but not closed by Close.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: bufio.NewWriter(w)}
}

// Name implements Backend.
func (s *StreamWriter) Name() string {
	return BackendStream
}

// Deliver implements Backend. The attempt budget does not apply to a local pipe.
func (s *StreamWriter) Deliver(_ context.Context, b Batch, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.WriteString(FormatStream(b)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to write event stream", err)
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to flush event stream", err)
	}
	return nil
}

// Close implements Backend.
func (s *StreamWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// FormatStream renders a batch as one <stream> element with one <event> per
// payload.
func FormatStream(b Batch) string {
	open := "<event>"
	closing := "</event>"
	switch {
	case b.Meta.Done:
		open = `<event unbroken="1">`
		closing = "<done/></event>"
	case b.Meta.Unbroken:
		open = `<event unbroken="1">`
	}

	var sb strings.Builder
	sb.WriteString("<stream>")
	for _, p := range b.Payloads {
		sb.WriteString(open)
		writeField(&sb, "index", b.Meta.Index)
		writeField(&sb, "host", b.Meta.Host)
		writeField(&sb, "source", b.Meta.Source)
		writeField(&sb, "sourcetype", b.Meta.Sourcetype)
		writeField(&sb, "time", b.Meta.Time)
		sb.WriteString("<data><![CDATA[")
		sb.WriteString(cdataEscaper.Replace(p))
		sb.WriteString("]]></data>")
		sb.WriteString(closing)
	}
	sb.WriteString("</stream>")
	return sb.String()
}

func writeField(sb *strings.Builder, name, value string) {
	sb.WriteString("<")
	sb.WriteString(name)
	sb.WriteString(">")
	sb.WriteString(fieldEscaper.Replace(value))
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteString(">")
}
