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
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
	"github.com/fsnotify/fsnotify"
)

// Watcher records whether any of a set of files changed since it started.
// It watches the parent directories so editors that replace files on save
// are detected too.
type Watcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	changed atomic.Bool
	log     *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching files.
func NewWatcher(files []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to create file watcher", err)
	}

	w := &Watcher{
		watcher: fw,
		files:   map[string]bool{},
		log:     logger,
		done:    make(chan struct{}),
	}
	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to watch config directory", err,
				map[string]any{"dir": dir})
		}
		dirs[dir] = true
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.changed.Swap(true) {
				w.log.Info("config file changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// Changed reports whether a watched file changed. The flag stays set.
func (w *Watcher) Changed() bool {
	return w.changed.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}
