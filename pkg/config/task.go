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

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/checkpoint"
	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// Kind selects the poller that runs a task.
type Kind string

const (
	// KindMetric polls Cloud Monitoring time series in windows.
	KindMetric Kind = "metric"
	// KindMessage streams messages from a Pub/Sub subscription.
	KindMessage Kind = "message"
)

// Isolation selects how tasks are executed.
type Isolation string

const (
	// IsolationGoroutine runs every task in the supervisor process.
	IsolationGoroutine Isolation = "goroutine"
	// IsolationProcess runs every task in its own child process.
	IsolationProcess Isolation = "process"
)

// Input is one configured stanza before expansion.
type Input struct {
	Name        string `yaml:"name" json:"name"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Credentials string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Project     string `yaml:"project" json:"project"`

	// Metrics and Subscriptions hold separator-delimited resource names.
	Metrics       string `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Subscriptions string `yaml:"subscriptions,omitempty" json:"subscriptions,omitempty"`

	// Interval is the polling period in seconds.
	Interval   int    `yaml:"interval,omitempty" json:"interval,omitempty"`
	Index      string `yaml:"index,omitempty" json:"index,omitempty"`
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Sourcetype string `yaml:"sourcetype,omitempty" json:"sourcetype,omitempty"`

	Isolation Isolation `yaml:"isolation,omitempty" json:"isolation,omitempty"`

	// Oldest is the start boundary, with or without the -00:00 suffix.
	Oldest string `yaml:"oldest,omitempty" json:"oldest,omitempty"`
	// Window is the metric window width in seconds.
	Window        int  `yaml:"window,omitempty" json:"window,omitempty"`
	BatchSize     int  `yaml:"batch_size,omitempty" json:"batchSize,omitempty"`
	Base64Encoded bool `yaml:"base64_encoded,omitempty" json:"base64Encoded,omitempty"`
}

// Task is one unit of polling work. Tasks are immutable once expanded.
type Task struct {
	Name         string    `json:"name"`
	Input        string    `json:"input"`
	Kind         Kind      `json:"kind"`
	Credentials  string    `json:"credentials,omitempty"`
	Project      string    `json:"project"`
	Metric       string    `json:"metric,omitempty"`
	Subscription string    `json:"subscription,omitempty"`
	Interval     int       `json:"interval"`
	Index        string    `json:"index,omitempty"`
	Host         string    `json:"host,omitempty"`
	Source       string    `json:"source"`
	Sourcetype   string    `json:"sourcetype"`
	Isolation    Isolation `json:"isolation"`
	Oldest       string    `json:"oldest,omitempty"`
	Window       int       `json:"window,omitempty"`
	BatchSize    int       `json:"batchSize,omitempty"`
	Base64       bool      `json:"base64Encoded,omitempty"`
}

// PollInterval returns the invocation period. Metric tasks never poll more
// often than the minimum interval.
func (t Task) PollInterval() time.Duration {
	d := time.Duration(t.Interval) * time.Second
	if t.Kind == KindMetric && d < defaults.MinPollingInterval {
		return defaults.MinPollingInterval
	}
	return d
}

// WindowWidth returns the metric window width.
func (t Task) WindowWidth() time.Duration {
	if t.Window <= 0 {
		return defaults.MetricWindow
	}
	d := time.Duration(t.Window) * time.Second
	if d < defaults.MinMetricWindow {
		return defaults.MinMetricWindow
	}
	return d
}

// Resource returns the metric type or subscription the task reads.
func (t Task) Resource() string {
	if t.Kind == KindMetric {
		return t.Metric
	}
	return t.Subscription
}

// Validate checks the fields the task's poller depends on.
func (t Task) Validate() error {
	fail := func(msg string) error {
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, msg, map[string]any{"task": t.Name})
	}
	if t.Name == "" {
		return fail("task name is required")
	}
	if t.Project == "" {
		return fail("project is required")
	}
	switch t.Kind {
	case KindMetric:
		if t.Metric == "" {
			return fail("metric is required")
		}
		if _, err := checkpoint.Parse(t.Oldest); err != nil {
			return errors.WrapWithContext(errors.ErrCodeInvalidConfig, "invalid oldest boundary", err,
				map[string]any{"task": t.Name, "oldest": t.Oldest})
		}
	case KindMessage:
		if t.Subscription == "" {
			return fail("subscription is required")
		}
	default:
		return fail(fmt.Sprintf("unknown task kind %q", t.Kind))
	}
	switch t.Isolation {
	case IsolationGoroutine, IsolationProcess:
	default:
		return fail(fmt.Sprintf("unknown isolation %q", t.Isolation))
	}
	return nil
}

// Descriptor says how inputs of one kind fan out into tasks: which field
// holds the delimited values and, optionally, which extra settings file
// holds more inputs of that kind.
type Descriptor struct {
	Kind         Kind   `yaml:"kind" json:"kind"`
	SettingsFile string `yaml:"settings_file,omitempty" json:"settingsFile,omitempty"`
	MetricField  string `yaml:"metric_field" json:"metricField"`
	Separator    string `yaml:"separator,omitempty" json:"separator,omitempty"`
}

// DefaultDescriptors fan metric inputs out on "metrics" and message inputs on
// "subscriptions", both comma separated.
var DefaultDescriptors = []Descriptor{
	{Kind: KindMetric, MetricField: "metrics", Separator: ","},
	{Kind: KindMessage, MetricField: "subscriptions", Separator: ","},
}

// field returns the raw value of the named input field.
func (in Input) field(name string) (string, bool) {
	switch name {
	case "metrics", "metric":
		return in.Metrics, true
	case "subscriptions", "subscription":
		return in.Subscriptions, true
	default:
		return "", false
	}
}

// Expand turns one input into one task per delimited value of the
// descriptor's field. Blank values are skipped; duplicates collapse.
func Expand(in Input, d Descriptor, g Global) ([]Task, error) {
	raw, ok := in.field(d.MetricField)
	if !ok {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown descriptor field",
			map[string]any{"input": in.Name, "field": d.MetricField})
	}
	sep := d.Separator
	if sep == "" {
		sep = ","
	}

	seen := map[string]bool{}
	var tasks []Task
	for _, v := range strings.Split(raw, sep) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		tasks = append(tasks, newTask(in, v, g))
	}
	if len(tasks) == 0 {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "input has no values to poll",
			map[string]any{"input": in.Name, "field": d.MetricField})
	}
	return tasks, nil
}

func newTask(in Input, value string, g Global) Task {
	t := Task{
		Name:        in.Name + ":" + value,
		Input:       in.Name,
		Kind:        in.Kind,
		Credentials: in.Credentials,
		Project:     in.Project,
		Interval:    in.Interval,
		Index:       firstNonEmpty(in.Index, g.Index),
		Host:        firstNonEmpty(in.Host, g.Host),
		Sourcetype:  in.Sourcetype,
		Isolation:   in.Isolation,
		Oldest:      checkpoint.StripZone(in.Oldest),
		Window:      in.Window,
		BatchSize:   in.BatchSize,
		Base64:      in.Base64Encoded,
	}
	if t.Isolation == "" {
		t.Isolation = g.Isolation
	}
	if t.Isolation == "" {
		t.Isolation = IsolationGoroutine
	}

	switch in.Kind {
	case KindMetric:
		t.Metric = value
		if t.Sourcetype == "" {
			t.Sourcetype = defaults.MetricSourcetype
		}
	case KindMessage:
		t.Subscription = value
		if t.Sourcetype == "" {
			t.Sourcetype = defaults.MessageSourcetype
		}
		if t.BatchSize <= 0 {
			t.BatchSize = defaults.PullBatchSize
		}
	}
	t.Source = fmt.Sprintf("%s:%s", t.Project, value)
	return t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
