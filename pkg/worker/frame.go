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

package worker

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
)

// FrameType names a frame on the parent/child link.
type FrameType string

const (
	FrameBatch FrameType = "batch"
	FrameAck   FrameType = "ack"
	FrameStop  FrameType = "stop"
)

// Frame is one line on the link.
type Frame struct {
	Type  FrameType   `json:"type"`
	ID    uint64      `json:"id,omitempty"`
	Retry int         `json:"retry,omitempty"`
	Batch *sink.Batch `json:"batch,omitempty"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ackFrame builds the reply for batch id from a delivery result.
func ackFrame(id uint64, err error) Frame {
	f := Frame{Type: FrameAck, ID: id}
	if err != nil {
		f.Error = err.Error()
		f.Code = string(errors.CodeOf(err))
	}
	return f
}

// result turns an ack frame back into a delivery result.
func (f Frame) result() error {
	if f.Error == "" {
		return nil
	}
	code := errors.ErrorCode(f.Code)
	if code == "" {
		code = errors.ErrCodeDeliveryFailed
	}
	return errors.New(code, f.Error)
}

// frameWriter serializes frames onto w, one per line.
type frameWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{enc: json.NewEncoder(w)}
}

func (w *frameWriter) send(f Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(f); err != nil {
		return errors.Wrap(errors.ErrCodeUnavailable, "failed to write frame", err)
	}
	workerFramesTotal.WithLabelValues(string(f.Type), "out").Inc()
	return nil
}
