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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Interface is an alias for kubernetes.Interface so state stores can take a
// fake clientset in tests.
type Interface = kubernetes.Interface

var (
	clientOnce   sync.Once
	kubeconfig   string
	cachedClient Interface
	cachedConfig *rest.Config
	clientErr    error
)

// SetKubeconfig pins the kubeconfig path used by GetKubeClient.
// It has no effect once the shared client has been built.
func SetKubeconfig(path string) {
	kubeconfig = path
}

// GetKubeClient returns the process-wide client, building it on first call.
// The ConfigMap state store and the CLI share this instance.
func GetKubeClient() (Interface, *rest.Config, error) {
	clientOnce.Do(func() {
		var cs *kubernetes.Clientset
		cs, cachedConfig, clientErr = BuildKubeClient(kubeconfig)
		if clientErr == nil {
			cachedClient = cs
		}
	})
	return cachedClient, cachedConfig, clientErr
}

// resolveKubeconfig picks the kubeconfig path: the explicit argument, then
// KUBECONFIG, then ~/.kube/config when it exists. An empty result selects
// in-cluster configuration.
func resolveKubeconfig(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	home := filepath.Join(homedir.HomeDir(), ".kube", "config")
	if _, err := os.Stat(home); err == nil {
		return home
	}
	return ""
}

// BuildKubeClient creates a new client from path, bypassing the shared cache.
func BuildKubeClient(path string) (*kubernetes.Clientset, *rest.Config, error) {
	var config *rest.Config
	var err error

	path = resolveKubeconfig(path)
	if path == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get in-cluster config: %w", err)
		}
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build kube config from %s: %w", path, err)
		}
	}
	config.UserAgent = "cloud-collector"

	cs, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return cs, config, nil
}
