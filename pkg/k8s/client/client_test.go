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

package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveKubeconfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		arg  string
		env  string
		want string
	}{
		{name: "explicit path wins", arg: "/etc/kube/a", env: "/etc/kube/b", want: "/etc/kube/a"},
		{name: "env fallback", env: "/etc/kube/b", want: "/etc/kube/b"},
		{name: "in-cluster when nothing found", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KUBECONFIG", tt.env)
			assert.Equal(t, tt.want, resolveKubeconfig(tt.arg))
		})
	}
}

func TestResolveKubeconfig_HomeDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("KUBECONFIG", "")

	cfg := filepath.Join(home, ".kube", "config")
	assert.NoError(t, os.MkdirAll(filepath.Dir(cfg), 0o755))
	assert.NoError(t, os.WriteFile(cfg, []byte("apiVersion: v1\n"), 0o600))

	assert.Equal(t, cfg, resolveKubeconfig(""))
}

func TestBuildKubeClient_InvalidPath(t *testing.T) {
	_, _, err := BuildKubeClient("/nonexistent/path/to/kubeconfig")
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), "failed to build kube config"))
	}
}
