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

package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
)

const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
)

// Option configures a Builder.
type Option func(*Builder)

// Builder creates HTTP clients from a fixed set of options and keeps the
// current one so callers can swap it out after connection failures.
type Builder struct {
	userAgent           string
	totalTimeout        time.Duration
	connectTimeout      time.Duration
	tlsHandshakeTimeout time.Duration
	idleConnTimeout     time.Duration
	maxIdleConnsPerHost int
	insecureSkipVerify  bool
	base                http.RoundTripper

	mu     sync.Mutex
	client *http.Client
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(b *Builder) {
		b.userAgent = ua
	}
}

// WithTotalTimeout sets the overall per-request timeout.
func WithTotalTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.totalTimeout = d
		}
	}
}

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.connectTimeout = d
		}
	}
}

// WithMaxIdleConnsPerHost sets the per-host idle pool size.
func WithMaxIdleConnsPerHost(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxIdleConnsPerHost = n
		}
	}
}

// WithInsecureSkipVerify disables server certificate verification.
func WithInsecureSkipVerify(skip bool) Option {
	return func(b *Builder) {
		b.insecureSkipVerify = skip
	}
}

// WithRoundTripper replaces the pooled transport, mainly for tests.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(b *Builder) {
		b.base = rt
	}
}

// New returns a Builder with the given options applied.
func New(options ...Option) *Builder {
	b := &Builder{
		totalTimeout:        defaults.HTTPClientTimeout,
		connectTimeout:      defaults.HTTPConnectTimeout,
		tlsHandshakeTimeout: defaults.HTTPTLSHandshakeTimeout,
		idleConnTimeout:     defaults.HTTPIdleConnTimeout,
		maxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Client returns the current client, building one on first use.
func (b *Builder) Client() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		b.client = b.build()
	}
	return b.client
}

// Rebuild drops pooled connections and replaces the current client.
func (b *Builder) Rebuild() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.CloseIdleConnections()
	}
	b.client = b.build()
	return b.client
}

func (b *Builder) build() *http.Client {
	rt := b.base
	if rt == nil {
		rt = b.newTransport()
	}
	if b.userAgent != "" {
		rt = &userAgentTransport{base: rt, userAgent: b.userAgent}
	}
	return &http.Client{
		Timeout:   b.totalTimeout,
		Transport: rt,
	}
}

func (b *Builder) newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: b.maxIdleConnsPerHost,
		DialContext: (&net.Dialer{
			Timeout:   b.connectTimeout,
			KeepAlive: defaults.HTTPKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       b.idleConnTimeout,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: b.insecureSkipVerify, //nolint:gosec // opt-in for self-signed HEC endpoints
		},
	}
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}
