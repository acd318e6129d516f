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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/NVIDIA/cloud-collector/pkg/gcp"
	"github.com/NVIDIA/cloud-collector/pkg/sink"
	"gopkg.in/yaml.v3"
)

// Role decides whether a node contends for the leader lease.
type Role string

const (
	// RoleDispatcher nodes hold the lease while dispatching tasks.
	RoleDispatcher Role = "dispatcher"
	// RoleWorker nodes run their tasks without the lease.
	RoleWorker Role = "worker"
)

// Environment variables applied on top of the file.
const (
	EnvRole          = "COLLECTOR_ROLE"
	EnvStateURI      = "COLLECTOR_STATE_URI"
	EnvSinkKind      = "COLLECTOR_SINK_KIND"
	EnvHECServerURI  = "COLLECTOR_HEC_SERVER_URI"
	EnvHECToken      = "COLLECTOR_HEC_TOKEN"
	EnvServerAddress = "COLLECTOR_SERVER_ADDRESS"
	EnvIsolation     = "COLLECTOR_ISOLATION"
	EnvLeaseEnabled  = "COLLECTOR_LEASE_ENABLED"
)

// Global holds settings shared by every input.
type Global struct {
	Role      Role      `yaml:"role,omitempty" json:"role,omitempty"`
	Isolation Isolation `yaml:"isolation,omitempty" json:"isolation,omitempty"`
	Index     string    `yaml:"index,omitempty" json:"index,omitempty"`
	Host      string    `yaml:"host,omitempty" json:"host,omitempty"`
	LogLevel  string    `yaml:"log_level,omitempty" json:"logLevel,omitempty"`
}

// State selects the durable state store.
type State struct {
	// URI is one of memory://, file://<dir>, cm://<namespace>/<name>,
	// redis://... or a bare directory path.
	URI string `yaml:"uri,omitempty" json:"uri,omitempty"`
}

// Lease configures leader election for dispatcher nodes.
type Lease struct {
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Key     string `yaml:"key,omitempty" json:"key,omitempty"`
	// TTL is the lease lifetime in seconds.
	TTL int `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// IsEnabled reports whether the lease is used. It defaults to true.
func (l Lease) IsEnabled() bool {
	return l.Enabled == nil || *l.Enabled
}

// Server configures the ops HTTP endpoint.
type Server struct {
	Enabled bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
}

// Config is the parsed configuration file.
type Config struct {
	Global      Global                `yaml:"global" json:"global"`
	Credentials map[string]gcp.Config `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Sink        sink.Config           `yaml:"sink" json:"sink"`
	State       State                 `yaml:"state" json:"state"`
	Lease       Lease                 `yaml:"lease" json:"lease"`
	Server      Server                `yaml:"server" json:"server"`
	Descriptors []Descriptor          `yaml:"descriptors,omitempty" json:"descriptors,omitempty"`
	Inputs      []Input               `yaml:"inputs" json:"inputs"`

	path  string
	files []string
	tasks []Task
}

type inputsFile struct {
	Inputs []Input `yaml:"inputs"`
}

// Load reads, overrides, validates and expands the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInvalidConfig, "failed to read config", err,
			map[string]any{"path": path})
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeInvalidConfig, "invalid config", err,
			map[string]any{"path": path})
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.path = abs
	cfg.files = []string{abs}

	if err := cfg.loadSettingsFiles(filepath.Dir(abs)); err != nil {
		return nil, err
	}
	if cfg.State.URI == "" {
		cfg.State.URI = "file://" + filepath.Join(filepath.Dir(abs), "state")
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies environment overrides and defaults. It does
// not read descriptor settings files; call Finish to validate and expand.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to parse config", err)
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.setDefaults()
	return cfg, nil
}

// Finish validates cfg and expands its inputs into tasks.
func (c *Config) Finish() error {
	return c.finish()
}

func (c *Config) finish() error {
	if err := c.Validate(); err != nil {
		return err
	}
	tasks, err := c.expand()
	if err != nil {
		return err
	}
	c.tasks = tasks
	return nil
}

func (c *Config) loadSettingsFiles(dir string) error {
	for _, d := range c.Descriptors {
		if d.SettingsFile == "" {
			continue
		}
		p := d.SettingsFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return errors.WrapWithContext(errors.ErrCodeInvalidConfig, "failed to read settings file", err,
				map[string]any{"path": p, "kind": d.Kind})
		}
		var f inputsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return errors.WrapWithContext(errors.ErrCodeInvalidConfig, "failed to parse settings file", err,
				map[string]any{"path": p})
		}
		for _, in := range f.Inputs {
			if in.Kind == "" {
				in.Kind = d.Kind
			}
			c.Inputs = append(c.Inputs, in)
		}
		c.files = append(c.files, p)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvRole); ok && v != "" {
		c.Global.Role = Role(strings.ToLower(v))
	}
	if v, ok := lookup(EnvIsolation); ok && v != "" {
		c.Global.Isolation = Isolation(strings.ToLower(v))
	}
	if v, ok := lookup(EnvStateURI); ok && v != "" {
		c.State.URI = v
	}
	if v, ok := lookup(EnvSinkKind); ok && v != "" {
		c.Sink.Kind = v
	}
	if v, ok := lookup(EnvHECServerURI); ok && v != "" {
		c.Sink.HEC.ServerURI = v
	}
	if v, ok := lookup(EnvHECToken); ok && v != "" {
		c.Sink.HEC.Token = v
	}
	if v, ok := lookup(EnvServerAddress); ok && v != "" {
		c.Server.Address = v
		c.Server.Enabled = true
	}
	if v, ok := lookup(EnvLeaseEnabled); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Lease.Enabled = &b
		}
	}
}

func (c *Config) setDefaults() {
	if c.Global.Role == "" {
		c.Global.Role = RoleWorker
	}
	if c.Global.Isolation == "" {
		c.Global.Isolation = IsolationGoroutine
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = sink.BackendStream
	}
	if c.Lease.Key == "" {
		c.Lease.Key = defaults.LeaseKey
	}
	if c.Lease.TTL <= 0 {
		c.Lease.TTL = int(defaults.LeaseTTL.Seconds())
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if len(c.Descriptors) == 0 {
		c.Descriptors = append([]Descriptor(nil), DefaultDescriptors...)
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Global.Role {
	case RoleDispatcher, RoleWorker:
	default:
		return errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown role",
			map[string]any{"role": c.Global.Role})
	}
	if err := c.Sink.Validate(); err != nil {
		return err
	}

	names := map[string]bool{}
	for i, in := range c.Inputs {
		if in.Name == "" {
			return errors.NewWithContext(errors.ErrCodeInvalidConfig, "input name is required",
				map[string]any{"input": i})
		}
		if names[in.Name] {
			return errors.NewWithContext(errors.ErrCodeInvalidConfig, "duplicate input name",
				map[string]any{"input": in.Name})
		}
		names[in.Name] = true
		if in.Credentials != "" {
			if _, ok := c.Credentials[in.Credentials]; !ok {
				return errors.NewWithContext(errors.ErrCodeInvalidConfig, "unknown credentials",
					map[string]any{"input": in.Name, "credentials": in.Credentials})
			}
		}
		if _, ok := c.descriptor(in.Kind); !ok {
			return errors.NewWithContext(errors.ErrCodeInvalidConfig, "no descriptor for input kind",
				map[string]any{"input": in.Name, "kind": in.Kind})
		}
	}
	return nil
}

func (c *Config) descriptor(k Kind) (Descriptor, bool) {
	for _, d := range c.Descriptors {
		if d.Kind == k {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (c *Config) expand() ([]Task, error) {
	var tasks []Task
	seen := map[string]bool{}
	for _, in := range c.Inputs {
		if in.Disabled {
			continue
		}
		d, _ := c.descriptor(in.Kind)
		expanded, err := Expand(in, d, c.Global)
		if err != nil {
			return nil, err
		}
		for _, t := range expanded {
			if err := t.Validate(); err != nil {
				return nil, err
			}
			if seen[t.Name] {
				return nil, errors.NewWithContext(errors.ErrCodeInvalidConfig, "duplicate task",
					map[string]any{"task": t.Name})
			}
			seen[t.Name] = true
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// Path returns the absolute path of the loaded file.
func (c *Config) Path() string {
	return c.path
}

// Files returns the main file and every descriptor settings file.
func (c *Config) Files() []string {
	return append([]string(nil), c.files...)
}

// Tasks returns the expanded tasks.
func (c *Config) Tasks() []Task {
	return append([]Task(nil), c.tasks...)
}

// Task returns the expanded task with the given name.
func (c *Config) Task(name string) (Task, error) {
	for _, t := range c.tasks {
		if t.Name == name {
			return t, nil
		}
	}
	return Task{}, errors.NewWithContext(errors.ErrCodeNotFound, fmt.Sprintf("no task named %q", name),
		map[string]any{"task": name})
}

// CredentialsFor returns the Google credentials of t. Tasks without a
// credentials name use application default credentials.
func (c *Config) CredentialsFor(t Task) gcp.Config {
	if t.Credentials == "" {
		return gcp.Config{}
	}
	return c.Credentials[t.Credentials]
}

// UseLease reports whether this node must hold the leader lease to dispatch.
func (c *Config) UseLease() bool {
	return c.Global.Role == RoleDispatcher && c.Lease.IsEnabled()
}
