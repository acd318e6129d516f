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

package checkpoint

import (
	"strings"
	"time"

	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

const (
	// Layout is the textual form of a checkpoint time, always UTC.
	Layout = "2006-01-02T15:04:05"

	// ZoneSuffix marks the UTC offset on the wire form.
	ZoneSuffix = "-00:00"
)

// StripZone removes a trailing zone suffix.
func StripZone(s string) string {
	return strings.TrimSuffix(s, ZoneSuffix)
}

// AddZone appends the zone suffix unless it is already present.
func AddZone(s string) string {
	if strings.HasSuffix(s, ZoneSuffix) {
		return s
	}
	return s + ZoneSuffix
}

// Parse reads a stored or wire form time.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, StripZone(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.WrapWithContext(errors.ErrCodeInvalidRequest,
			"invalid checkpoint time", err, map[string]any{"value": s})
	}
	return t, nil
}

// Format renders t in the stored (unsuffixed) form.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Wire renders t in the suffixed form sent to the monitoring API.
func Wire(t time.Time) string {
	return AddZone(Format(t))
}

// Window returns the upper edge of the next fetch window starting at oldest.
// When the window would reach now it is clamped to now and done is true.
// A clock behind oldest yields an empty window at oldest.
func Window(oldest time.Time, win time.Duration, now time.Time) (youngest time.Time, done bool) {
	if now.Before(oldest) {
		return oldest, true
	}
	youngest = oldest.Add(win)
	if !youngest.Before(now) {
		return now, true
	}
	return youngest, false
}
