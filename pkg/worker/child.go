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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
)

// ErrLinkClosed is returned by Link.WriteEvents once the parent side is gone.
var ErrLinkClosed = errors.New(errors.ErrCodeUnavailable, "parent link closed")

// Link is the child end of the frame protocol. It implements the event
// writer the task hands its batches to.
type Link struct {
	in  io.Reader
	out *frameWriter
	log *slog.Logger

	mu      sync.Mutex
	next    uint64
	pending map[uint64]chan Frame

	stopOnce sync.Once
	teardown chan struct{}
	closed   chan struct{}
}

// NewLink returns a link reading parent frames from in and writing child
// frames to out. Call Serve to start reading.
func NewLink(in io.Reader, out io.Writer, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{
		in:       in,
		out:      newFrameWriter(out),
		log:      log,
		pending:  make(map[uint64]chan Frame),
		teardown: make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Teardown is closed on a stop frame or when the parent closes stdin.
func (l *Link) Teardown() <-chan struct{} {
	return l.teardown
}

func (l *Link) stop() {
	l.stopOnce.Do(func() {
		close(l.teardown)
	})
}

// Serve reads parent frames until EOF.
func (l *Link) Serve() {
	defer close(l.closed)
	defer l.stop()

	dec := json.NewDecoder(l.in)
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if err != io.EOF {
				l.log.Error("failed to read parent frame", slog.String("error", err.Error()))
			}
			return
		}
		workerFramesTotal.WithLabelValues(string(f.Type), "in").Inc()

		switch f.Type {
		case FrameStop:
			l.stop()
		case FrameAck:
			l.mu.Lock()
			ch, ok := l.pending[f.ID]
			delete(l.pending, f.ID)
			l.mu.Unlock()
			if ok {
				ch <- f
			}
		default:
			l.log.Warn("unexpected parent frame", slog.String("type", string(f.Type)))
		}
	}
}

// WriteEvents hands b to the parent sink and waits for its ack.
func (l *Link) WriteEvents(ctx context.Context, b sink.Batch, retry int) error {
	ch := make(chan Frame, 1)
	l.mu.Lock()
	l.next++
	id := l.next
	l.pending[id] = ch
	l.mu.Unlock()

	forget := func() {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
	}

	if err := l.out.send(Frame{Type: FrameBatch, ID: id, Retry: retry, Batch: &b}); err != nil {
		forget()
		return err
	}

	select {
	case f := <-ch:
		return f.result()
	case <-ctx.Done():
		forget()
		return errors.Wrap(errors.ErrCodeTimeout, "batch hand-off cancelled", ctx.Err())
	case <-l.closed:
		forget()
		return ErrLinkClosed
	}
}

// RunChild is the body of the worker command: it builds the task with a Link
// on in/out as its writer and supervises it until a stop frame, EOF, or
// the parent dies.
func RunChild(ctx context.Context, task config.Task, f Factory, in io.Reader, out io.Writer, opts ...Option) error {
	o := buildOptions(opts)
	log := o.log.With(slog.String("task", task.Name))

	link := NewLink(in, out, log)
	go link.Serve()

	r, err := f(ctx, task, link)
	if err != nil {
		return err
	}

	if o.orphaned == nil {
		opts = append(opts, WithOrphanCheck(NewParentCheck().Orphaned))
	}
	workerRunning.WithLabelValues(modeProcess).Inc()
	defer workerRunning.WithLabelValues(modeProcess).Dec()

	log.Info("worker started", slog.Int("pid", os.Getpid()))
	err = Supervise(ctx, r, link.Teardown(), opts...)
	log.Info("worker stopped")
	return err
}
