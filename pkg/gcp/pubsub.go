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
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/NVIDIA/cloud-collector/pkg/defaults"
	"github.com/NVIDIA/cloud-collector/pkg/errors"
)

// Message is a Pub/Sub message as returned by pull.
type Message struct {
	Data        string            `json:"data,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`
}

// ReceivedMessage pairs a message with the id used to acknowledge it.
type ReceivedMessage struct {
	AckID   string  `json:"ackId"`
	Message Message `json:"message"`
}

// SubscriptionConfig identifies a subscription and how to pull from it.
type SubscriptionConfig struct {
	Project      string
	Subscription string
	// BatchSize is the maximum number of messages per pull.
	BatchSize int
	// Base64Encoded decodes message data before it is returned.
	Base64Encoded bool
}

// Subscription pulls and acknowledges messages of one subscription.
type Subscription struct {
	client *Client
	cfg    SubscriptionConfig
	name   string
}

// Subscription returns a handle on the configured subscription.
func (c *Client) Subscription(cfg SubscriptionConfig) *Subscription {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.PullBatchSize
	}
	return &Subscription{
		client: c,
		cfg:    cfg,
		name:   FQRN("subscriptions", cfg.Project, cfg.Subscription),
	}
}

// Name returns the fully qualified subscription name.
func (s *Subscription) Name() string {
	return s.name
}

type pullRequest struct {
	ReturnImmediately bool `json:"returnImmediately"`
	MaxMessages       int  `json:"maxMessages"`
}

type pullResponse struct {
	ReceivedMessages []ReceivedMessage `json:"receivedMessages"`
}

// Pull long-polls for up to BatchSize messages. An empty result is not an error.
func (s *Subscription) Pull(ctx context.Context) ([]ReceivedMessage, error) {
	var resp pullResponse
	url := fmt.Sprintf("%s/v1/%s:pull", s.client.pubsub, s.name)
	req := pullRequest{ReturnImmediately: false, MaxMessages: s.cfg.BatchSize}
	if err := s.client.call(ctx, "pubsub.pull", http.MethodPost, url, req, &resp); err != nil {
		return nil, errors.WrapWithContext(codeOf(err), "failed to pull messages", err,
			map[string]any{"subscription": s.name})
	}

	if s.cfg.Base64Encoded {
		for i := range resp.ReceivedMessages {
			m := &resp.ReceivedMessages[i].Message
			if m.Data == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(m.Data)
			if err != nil {
				s.client.log.Debug("message data is not base64, keeping it as is",
					slog.String("subscription", s.name),
					slog.String("messageId", m.MessageID))
				continue
			}
			m.Data = string(decoded)
		}
	}
	return resp.ReceivedMessages, nil
}

type ackRequest struct {
	AckIDs []string `json:"ackIds"`
}

// Ack acknowledges msgs.
func (s *Subscription) Ack(ctx context.Context, msgs []ReceivedMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.AckID)
	}
	url := fmt.Sprintf("%s/v1/%s:acknowledge", s.client.pubsub, s.name)
	if err := s.client.call(ctx, "pubsub.acknowledge", http.MethodPost, url, ackRequest{AckIDs: ids}, nil); err != nil {
		return errors.WrapWithContext(codeOf(err), "failed to acknowledge messages", err,
			map[string]any{"subscription": s.name, "count": len(ids)})
	}
	return nil
}

type publishMessage struct {
	Data string `json:"data"`
}

type publishRequest struct {
	Messages []publishMessage `json:"messages"`
}

type publishResponse struct {
	MessageIDs []string `json:"messageIds"`
}

// Publish sends payloads to a topic and returns the assigned message ids.
func (c *Client) Publish(ctx context.Context, project, topic string, payloads [][]byte) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	req := publishRequest{Messages: make([]publishMessage, 0, len(payloads))}
	for _, p := range payloads {
		req.Messages = append(req.Messages, publishMessage{Data: base64.StdEncoding.EncodeToString(p)})
	}

	name := FQRN("topics", project, topic)
	url := fmt.Sprintf("%s/v1/%s:publish", c.pubsub, name)
	var resp publishResponse
	if err := c.call(ctx, "pubsub.publish", http.MethodPost, url, req, &resp); err != nil {
		return nil, errors.WrapWithContext(codeOf(err), "failed to publish messages", err,
			map[string]any{"topic": name})
	}
	return resp.MessageIDs, nil
}
