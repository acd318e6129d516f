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
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/transport"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// HEC backend names.
const (
	BackendHEC    = "hec"
	BackendHECRaw = "hec_raw"
)

const (
	hecEventPath = "/services/collector"
	hecRawPath   = "/services/collector/raw"

	// HeaderRequestChannel identifies the client channel in raw mode.
	HeaderRequestChannel = "x-splunk-request-channel"
)

// HECConfig configures a HEC backend.
type HECConfig struct {
	ServerURI          string  `json:"serverURI" yaml:"server_uri"`
	Token              string  `json:"-" yaml:"token"`
	Channel            string  `json:"channel,omitempty" yaml:"channel,omitempty"`
	Raw                bool    `json:"raw,omitempty" yaml:"raw,omitempty"`
	InsecureSkipVerify bool    `json:"insecureSkipVerify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	RequestsPerSecond  float64 `json:"requestsPerSecond,omitempty" yaml:"requests_per_second,omitempty"`
}

// HECOption configures a HECWriter.
type HECOption func(*HECWriter)

// WithRetryPause overrides the pause between failed attempts.
func WithRetryPause(d time.Duration) HECOption {
	return func(w *HECWriter) {
		w.pause = d
	}
}

// WithHTTPBuilder overrides the HTTP client builder.
func WithHTTPBuilder(b *transport.Builder) HECOption {
	return func(w *HECWriter) {
		if b != nil {
			w.http = b
		}
	}
}

// WithHECLogger sets the logger for failed attempts.
func WithHECLogger(l *slog.Logger) HECOption {
	return func(w *HECWriter) {
		if l != nil {
			w.log = l
		}
	}
}

// HECWriter posts batches to an HTTP Event Collector.
type HECWriter struct {
	name    string
	uri     string
	raw     bool
	header  http.Header
	http    *transport.Builder
	limiter *rate.Limiter
	pause   time.Duration
	log     *slog.Logger
}

// NewHECWriter validates cfg and returns a writer for the event or raw endpoint.
func NewHECWriter(cfg HECConfig, options ...HECOption) (*HECWriter, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURI, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "invalid HEC server URI",
			map[string]any{"server_uri": cfg.ServerURI})
	}
	if cfg.Token == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "HEC token is required")
	}

	w := &HECWriter{
		name:  BackendHEC,
		uri:   base.String() + hecEventPath,
		raw:   cfg.Raw,
		pause: defaults.RetryPause,
		log:   slog.Default(),
		header: http.Header{
			"Authorization": []string{"Splunk " + cfg.Token},
			"Connection":    []string{"keep-alive"},
			"Content-Type":  []string{"application/json"},
		},
	}
	if cfg.Raw {
		channel := cfg.Channel
		if channel == "" {
			channel = uuid.NewString()
		}
		w.name = BackendHECRaw
		w.uri = base.String() + hecRawPath
		w.header.Set(HeaderRequestChannel, channel)
		w.header.Set("Content-Type", "text/plain")
	}
	if cfg.RequestsPerSecond > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	for _, opt := range options {
		opt(w)
	}
	if w.http == nil {
		w.http = transport.New(
			transport.WithUserAgent(defaults.UserAgent),
			transport.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		)
	}
	w.log = w.log.With(slog.String("backend", w.name), slog.String("uri", w.uri))
	return w, nil
}

// Name implements Backend.
func (w *HECWriter) Name() string {
	return w.name
}

// URI returns the endpoint batches are posted to.
func (w *HECWriter) URI() string {
	return w.uri
}

// Deliver implements Backend. Each failed attempt rebuilds the HTTP client
// and waits for the retry pause. The last error is returned once attempts
// are used up.
func (w *HECWriter) Deliver(ctx context.Context, b Batch, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	body, target, err := w.prepare(b)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to encode events", err)
	}

	tries := 0
	op := func() error {
		tries++
		err := w.post(ctx, target, body)
		if err != nil {
			sinkDeliveryAttempts.WithLabelValues(w.name, "failed").Inc()
			w.log.Error("failed to post events",
				slog.Int("attempt", tries),
				slog.String("error", err.Error()))
			w.http.Rebuild()
			return err
		}
		sinkDeliveryAttempts.WithLabelValues(w.name, "delivered").Inc()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(w.pause), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return errors.WrapWithContext(errors.ErrCodeDeliveryFailed, "failed to post events", err,
			map[string]any{"uri": w.uri, "attempts": tries})
	}
	return nil
}

func (w *HECWriter) prepare(b Batch) ([]byte, string, error) {
	if w.raw {
		q := url.Values{}
		for k, v := range map[string]string{
			"index":      b.Meta.Index,
			"host":       b.Meta.Host,
			"source":     b.Meta.Source,
			"sourcetype": b.Meta.Sourcetype,
		} {
			if v != "" {
				q.Set(k, v)
			}
		}
		target := w.uri
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
		return []byte(strings.Join(b.Payloads, "\n")), target, nil
	}

	lines, err := hecEvents(b)
	if err != nil {
		return nil, "", err
	}
	return bytes.Join(lines, []byte("\n")), w.uri, nil
}

func (w *HECWriter) post(ctx context.Context, target string, body []byte) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	for k, v := range w.header {
		req.Header[k] = v
	}

	resp, err := w.http.Client().Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeTransient, "HEC request failed", err)
	}
	defer resp.Body.Close()
	content, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return nil
	}
	return errors.NewWithContext(errors.ErrCodeUnavailable,
		fmt.Sprintf("HEC returned status %d", resp.StatusCode),
		map[string]any{"status": resp.StatusCode, "reason": strings.TrimSpace(string(content))})
}

// Close implements Backend.
func (w *HECWriter) Close() error {
	w.http.Client().CloseIdleConnections()
	return nil
}
