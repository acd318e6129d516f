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
	"encoding/json"
)

// Meta carries the routing fields attached to every event of a batch.
type Meta struct {
	Index      string `json:"index,omitempty"`
	Host       string `json:"host,omitempty"`
	Source     string `json:"source,omitempty"`
	Sourcetype string `json:"sourcetype,omitempty"`
	Time       string `json:"time,omitempty"`

	// Unbroken marks the events as parts of one multi-part event.
	Unbroken bool `json:"unbroken,omitempty"`
	// Done marks the terminal part. It implies Unbroken.
	Done bool `json:"done,omitempty"`
}

// Batch is an ordered set of raw payloads sharing one Meta.
type Batch struct {
	Meta     Meta     `json:"meta"`
	Payloads []string `json:"payloads"`
}

// CreateEvents builds a batch, copying payloads so later changes by the
// caller do not leak into a queued batch.
func CreateEvents(meta Meta, payloads []string) Batch {
	if meta.Done {
		meta.Unbroken = true
	}
	p := make([]string, len(payloads))
	copy(p, payloads)
	return Batch{Meta: meta, Payloads: p}
}

// Len returns the number of events in the batch.
func (b Batch) Len() int {
	return len(b.Payloads)
}

// hecEvent is the HEC event envelope.
type hecEvent struct {
	Event      any    `json:"event"`
	Index      string `json:"index,omitempty"`
	Host       string `json:"host,omitempty"`
	Source     string `json:"source,omitempty"`
	Sourcetype string `json:"sourcetype,omitempty"`
	Time       string `json:"time,omitempty"`
}

// hecEvents renders each payload as one HEC envelope. JSON payloads are
// embedded as objects, anything else as a string.
func hecEvents(b Batch) ([][]byte, error) {
	out := make([][]byte, 0, len(b.Payloads))
	for _, p := range b.Payloads {
		var ev any = p
		if json.Valid([]byte(p)) {
			ev = json.RawMessage(p)
		}
		line, err := json.Marshal(hecEvent{
			Event:      ev,
			Index:      b.Meta.Index,
			Host:       b.Meta.Host,
			Source:     b.Meta.Source,
			Sourcetype: b.Meta.Sourcetype,
			Time:       b.Meta.Time,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}
