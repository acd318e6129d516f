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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// MetricDescriptor describes one metric type available in a project.
type MetricDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MetricKind  string `json:"metricKind,omitempty"`
	ValueType   string `json:"valueType,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type timeSeriesPage struct {
	TimeSeries    []json.RawMessage `json:"timeSeries"`
	NextPageToken string            `json:"nextPageToken"`
}

type descriptorPage struct {
	MetricDescriptors []MetricDescriptor `json:"metricDescriptors"`
	NextPageToken     string             `json:"nextPageToken"`
}

// ListMetrics returns every time series of metric in [oldest, youngest).
// Both bounds are RFC 3339 timestamps. Each series is returned as raw JSON.
func (c *Client) ListMetrics(ctx context.Context, project, metric, oldest, youngest string) ([]json.RawMessage, error) {
	if project == "" || metric == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "project and metric are required")
	}

	q := url.Values{}
	q.Set("filter", fmt.Sprintf("metric.type = %q", metric))
	q.Set("interval.startTime", oldest)
	q.Set("interval.endTime", youngest)
	q.Set("pageSize", strconv.Itoa(defaults.MetricPageSize))
	base := fmt.Sprintf("%s/v3/projects/%s/timeSeries", c.monitoring, url.PathEscape(project))

	var out []json.RawMessage
	err := c.paginate(ctx, "monitoring.timeSeries.list", base, q, func(raw []byte) (string, error) {
		var page timeSeriesPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", err
		}
		out = append(out, page.TimeSeries...)
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, errors.WrapWithContext(codeOf(err), "failed to list time series", err,
			map[string]any{"project": project, "metric": metric})
	}
	return out, nil
}

// ListMetricDescriptors returns every metric descriptor of project.
func (c *Client) ListMetricDescriptors(ctx context.Context, project string) ([]MetricDescriptor, error) {
	if project == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "project is required")
	}
	base := fmt.Sprintf("%s/v3/projects/%s/metricDescriptors", c.monitoring, url.PathEscape(project))

	var out []MetricDescriptor
	err := c.paginate(ctx, "monitoring.metricDescriptors.list", base, url.Values{}, func(raw []byte) (string, error) {
		var page descriptorPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", err
		}
		out = append(out, page.MetricDescriptors...)
		return page.NextPageToken, nil
	})
	if err != nil {
		return nil, errors.WrapWithContext(codeOf(err), "failed to list metric descriptors", err,
			map[string]any{"project": project})
	}
	return out, nil
}

// paginate follows nextPageToken until a page carries none.
func (c *Client) paginate(ctx context.Context, api, base string, q url.Values, page func([]byte) (string, error)) error {
	token := ""
	for {
		if token != "" {
			q.Set("pageToken", token)
		}
		var raw json.RawMessage
		if err := c.call(ctx, api, http.MethodGet, base+"?"+q.Encode(), nil, &raw); err != nil {
			return err
		}
		next, err := page(raw)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to decode page", err)
		}
		if next == "" || next == token {
			return nil
		}
		token = next
	}
}
