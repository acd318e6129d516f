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

package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/transport"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultMonitoringEndpoint is the Cloud Monitoring v3 API root.
	DefaultMonitoringEndpoint = "https://monitoring.googleapis.com"
	// DefaultPubSubEndpoint is the Cloud Pub/Sub v1 API root.
	DefaultPubSubEndpoint = "https://pubsub.googleapis.com"
)

// Scopes requested for every client.
var Scopes = []string{
	"https://www.googleapis.com/auth/monitoring.read",
	"https://www.googleapis.com/auth/pubsub",
}

// Config holds credentials and endpoints.
type Config struct {
	// CredentialsJSON is an inline service account key.
	CredentialsJSON string `json:"-" yaml:"credentials_json,omitempty"`
	// CredentialsFile is the path to a service account key. Ignored when
	// CredentialsJSON is set. When both are empty application default
	// credentials are used.
	CredentialsFile    string `json:"credentialsFile,omitempty" yaml:"credentials_file,omitempty"`
	MonitoringEndpoint string `json:"monitoringEndpoint,omitempty" yaml:"monitoring_endpoint,omitempty"`
	PubSubEndpoint     string `json:"pubsubEndpoint,omitempty" yaml:"pubsub_endpoint,omitempty"`
}

// FQRN returns the fully qualified name of a Pub/Sub resource.
func FQRN(resourceType, project, resource string) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, resourceType, resource)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses c as is, skipping credential discovery.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAttempts sets how many times each request is tried.
func WithAttempts(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.attempts = n
		}
	}
}

// WithRetryPause sets a constant pause between attempts.
func WithRetryPause(d time.Duration) Option {
	return func(cl *Client) {
		cl.pause = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// Client talks to the Monitoring and Pub/Sub REST APIs.
type Client struct {
	http       *http.Client
	monitoring string
	pubsub     string
	attempts   int
	pause      time.Duration
	log        *slog.Logger
}

// NewClient resolves credentials and returns a client.
func NewClient(ctx context.Context, cfg Config, options ...Option) (*Client, error) {
	c := &Client{
		monitoring: strings.TrimRight(orDefault(cfg.MonitoringEndpoint, DefaultMonitoringEndpoint), "/"),
		pubsub:     strings.TrimRight(orDefault(cfg.PubSubEndpoint, DefaultPubSubEndpoint), "/"),
		attempts:   defaults.SourceRequestAttempts,
		pause:      time.Second,
		log:        slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.http != nil {
		return c, nil
	}

	creds, err := findCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	base := transport.New(transport.WithUserAgent(defaults.UserAgent)).Client()
	c.http = oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)
	c.http.Timeout = defaults.HTTPClientTimeout
	return c, nil
}

func findCredentials(ctx context.Context, cfg Config) (*google.Credentials, error) {
	data := []byte(cfg.CredentialsJSON)
	if len(data) == 0 && cfg.CredentialsFile != "" {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeInvalidConfig, "failed to read credentials file", err,
				map[string]any{"path": cfg.CredentialsFile})
		}
		data = b
	}

	if len(data) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUnauthorized, "invalid Google credentials", err)
		}
		return creds, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnauthorized, "no Google application default credentials", err)
	}
	return creds, nil
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

// apiError is the error envelope returned by Google APIs.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// call sends one JSON request with retries and decodes the response into out.
func (c *Client) call(ctx context.Context, api, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to encode request", err)
		}
		body = b
	}

	start := time.Now()
	defer func() {
		gcpRequestDuration.WithLabelValues(api).Observe(time.Since(start).Seconds())
	}()

	op := func() error {
		err := c.once(ctx, api, method, url, body, out)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.pause), uint64(c.attempts-1)), ctx)
	return backoff.Retry(op, policy)
}

func (c *Client) once(ctx context.Context, api, method, url string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidRequest, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		gcpRequestsTotal.WithLabelValues(api, "error").Inc()
		return classify(err, url)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		gcpRequestsTotal.WithLabelValues(api, "error").Inc()
		return classify(err, url)
	}
	gcpRequestsTotal.WithLabelValues(api, fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()

	if resp.StatusCode >= 300 {
		var ae apiError
		msg := strings.TrimSpace(string(content))
		if json.Unmarshal(content, &ae) == nil && ae.Error.Message != "" {
			msg = ae.Error.Message
		}
		return statusError(resp.StatusCode, msg, url)
	}

	if out == nil || len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, out); err != nil {
		return errors.WrapWithContext(errors.ErrCodeInternal, "failed to decode response", err,
			map[string]any{"url": url})
	}
	return nil
}

func statusError(status int, msg, url string) error {
	ctx := map[string]any{"status": status, "url": url}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewWithContext(errors.ErrCodeUnauthorized, msg, ctx)
	case status == http.StatusNotFound:
		return errors.NewWithContext(errors.ErrCodeNotFound, msg, ctx)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.NewWithContext(errors.ErrCodeUnavailable, msg, ctx)
	default:
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, msg, ctx)
	}
}

// classify maps transport failures onto TIMEOUT or TRANSIENT.
func classify(err error, url string) error {
	var ne net.Error
	if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &ne) && ne.Timeout()) {
		return errors.WrapWithContext(errors.ErrCodeTimeout, "request timed out", err, map[string]any{"url": url})
	}
	return errors.WrapWithContext(errors.ErrCodeTransient, "request failed", err, map[string]any{"url": url})
}

// retryable excludes timeouts: a timed-out long poll is handed back to the
// caller at once.
func retryable(err error) bool {
	return errors.IsCode(err, errors.ErrCodeTransient) || errors.IsCode(err, errors.ErrCodeUnavailable)
}

func codeOf(err error) errors.ErrorCode {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrCodeTimeout
	}
	return errors.ErrCodeInternal
}
