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

package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/NVIDIA/cloud-collector/pkg/config"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/poller"
	"github.com/NVIDIA/cloud-collector/pkg/state"
	"github.com/NVIDIA/cloud-collector/pkg/worker"
)

// Factory creates polling tasks with their dependencies.
// This interface enables dependency injection for testing.
type Factory interface {
	Create(ctx context.Context, task config.Task, w poller.EventWriter) (worker.Runnable, error)
}

// CredentialsSource resolves the Google credentials of a task.
type CredentialsSource interface {
	CredentialsFor(t config.Task) gcp.Config
}

// Option configures a DefaultFactory.
type Option func(*DefaultFactory)

// WithLogger sets the logger handed to clients and pollers.
func WithLogger(l *slog.Logger) Option {
	return func(f *DefaultFactory) {
		if l != nil {
			f.log = l
		}
	}
}

// WithClientOptions adds options to every Google API client.
func WithClientOptions(opts ...gcp.Option) Option {
	return func(f *DefaultFactory) {
		f.clientOpts = append(f.clientOpts, opts...)
	}
}

// WithPollerOptions adds options to every poller.
func WithPollerOptions(opts ...poller.Option) Option {
	return func(f *DefaultFactory) {
		f.pollerOpts = append(f.pollerOpts, opts...)
	}
}

// DefaultFactory creates pollers with production dependencies.
type DefaultFactory struct {
	creds      CredentialsSource
	store      state.Store
	log        *slog.Logger
	clientOpts []gcp.Option
	pollerOpts []poller.Option

	mu      sync.Mutex
	clients map[string]*gcp.Client
}

// NewDefaultFactory creates a factory resolving credentials through creds
// and keeping checkpoints in store.
func NewDefaultFactory(creds CredentialsSource, store state.Store, opts ...Option) *DefaultFactory {
	f := &DefaultFactory{
		creds:   creds,
		store:   store,
		log:     slog.Default(),
		clients: make(map[string]*gcp.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the poller for task. Its signature matches worker.Factory.
func (f *DefaultFactory) Create(ctx context.Context, task config.Task, w poller.EventWriter) (worker.Runnable, error) {
	client, err := f.Client(ctx, task)
	if err != nil {
		return nil, err
	}

	deps := poller.Deps{Writer: w, Store: f.store}
	switch task.Kind {
	case config.KindMetric:
		deps.Metrics = client
	case config.KindMessage:
		deps.Messages = client.Subscription(gcp.SubscriptionConfig{
			Project:       task.Project,
			Subscription:  task.Subscription,
			BatchSize:     task.BatchSize,
			Base64Encoded: task.Base64,
		})
	}

	opts := append([]poller.Option{poller.WithLogger(f.log)}, f.pollerOpts...)
	p, err := poller.New(ctx, task, deps, opts...)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to create poller", err,
			map[string]any{"task": task.Name})
	}
	return p, nil
}

// Client returns the Google API client for the credentials task names,
// creating it on first use.
func (f *DefaultFactory) Client(ctx context.Context, task config.Task) (*gcp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[task.Credentials]; ok {
		return c, nil
	}
	opts := append([]gcp.Option{gcp.WithLogger(f.log)}, f.clientOpts...)
	c, err := gcp.NewClient(ctx, f.creds.CredentialsFor(task), opts...)
	if err != nil {
		return nil, err
	}
	f.clients[task.Credentials] = c
	return c, nil
}
