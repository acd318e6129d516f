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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	b := New()
	c := b.Client()

	assert.Same(t, c, b.Client(), "client should be cached")

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
}

func TestBuilderOptions(t *testing.T) {
	b := New(
		WithTotalTimeout(5*time.Second),
		WithInsecureSkipVerify(true),
		WithMaxIdleConnsPerHost(3),
	)
	c := b.Client()
	assert.Equal(t, 5*time.Second, c.Timeout)

	tr := c.Transport.(*http.Transport)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, 3, tr.MaxIdleConnsPerHost)
}

func TestRebuildReplacesClient(t *testing.T) {
	b := New()
	first := b.Client()
	second := b.Rebuild()
	assert.NotSame(t, first, second)
	assert.Same(t, second, b.Client())
}

func TestUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := New(WithUserAgent("cloud-collector/test")).Client()
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "cloud-collector/test", got)
}
