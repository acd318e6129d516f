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
	"os/exec"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
)

// CommandFunc builds the child command for a task.
type CommandFunc func(task config.Task) *exec.Cmd

// SelfCommand re-executes the running binary as
// "<exe> worker --config <path> --task <name>".
func SelfCommand(configPath string) (CommandFunc, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to resolve executable", err)
	}
	return func(task config.Task) *exec.Cmd {
		return exec.Command(exe, "worker", "--config", configPath, "--task", task.Name)
	}, nil
}

// ProcessSpawner runs each task in a child process.
type ProcessSpawner struct {
	command  CommandFunc
	writer   poller.EventWriter
	teardown <-chan struct{}
	o        options
}

// NewProcessSpawner returns a spawner whose children hand batches to w.
func NewProcessSpawner(cmd CommandFunc, w poller.EventWriter, teardown <-chan struct{}, opts ...Option) *ProcessSpawner {
	return &ProcessSpawner{
		command:  cmd,
		writer:   w,
		teardown: teardown,
		o:        buildOptions(opts),
	}
}

// Spawn starts the child for task.
func (s *ProcessSpawner) Spawn(ctx context.Context, task config.Task) (Handle, error) {
	cmd := s.command(task)
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to open child stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to open child stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to start worker process", err,
			map[string]any{"task": task.Name})
	}

	p := &child{
		cmd:    cmd,
		stdin:  stdin,
		frames: newFrameWriter(stdin),
		writer: s.writer,
		exited: make(chan struct{}),
		stopCh: make(chan struct{}),
		log:    s.o.log.With(slog.String("task", task.Name), slog.Int("pid", cmd.Process.Pid)),
		o:      s.o,
	}
	p.handle = newHandle(task.Name, func() { close(p.stopCh) })

	workerRunning.WithLabelValues(modeProcess).Inc()
	p.log.Info("task started", slog.String("mode", modeProcess))

	go p.serve(ctx, stdout)
	go p.watch(ctx, s.teardown)
	return p.handle, nil
}

// child is the parent-side view of one worker process.
type child struct {
	*handle
	cmd    *exec.Cmd
	stdin  io.Closer
	frames *frameWriter
	writer poller.EventWriter
	exited chan struct{}
	stopCh chan struct{}
	log    *slog.Logger
	o      options
}

// serve forwards batch frames to the sink until the child closes stdout,
// then reaps the process.
func (p *child) serve(ctx context.Context, stdout io.Reader) {
	dec := json.NewDecoder(stdout)
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if err != io.EOF {
				p.log.Error("failed to read worker frame", slog.String("error", err.Error()))
			}
			break
		}
		workerFramesTotal.WithLabelValues(string(f.Type), "in").Inc()
		if f.Type != FrameBatch || f.Batch == nil {
			p.log.Warn("unexpected worker frame", slog.String("type", string(f.Type)))
			continue
		}
		err := p.writer.WriteEvents(ctx, *f.Batch, f.Retry)
		if sendErr := p.frames.send(ackFrame(f.ID, err)); sendErr != nil {
			p.log.Debug("failed to ack batch", slog.String("error", sendErr.Error()))
		}
	}

	err := p.cmd.Wait()
	_ = p.stdin.Close()
	close(p.exited)
	if err != nil {
		err = errors.Wrap(errors.ErrCodeInternal, "worker process failed", err)
	}
	p.finish(modeProcess, err, p.log)
}

// watch sends the stop frame on teardown and kills a child that does not
// exit within WorkerStopTimeout. Stdin stays open so in-flight acks still
// reach the child.
func (p *child) watch(ctx context.Context, teardown <-chan struct{}) {
	select {
	case <-p.exited:
		return
	case <-teardown:
	case <-p.stopCh:
	case <-ctx.Done():
	}

	if err := p.frames.send(Frame{Type: FrameStop}); err != nil {
		p.log.Debug("failed to send stop frame", slog.String("error", err.Error()))
	}

	select {
	case <-p.exited:
	case <-p.o.clock.After(defaults.WorkerStopTimeout):
		p.log.Warn("worker did not stop in time, killing")
		_ = p.cmd.Process.Kill()
	}
}
