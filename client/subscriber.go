/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package client

import (
	"context"
	"fmt"
)

// Subscriber is the public entry point: configure it, call Open, and
// events flow through the EventSink until Close or the context passed to
// Open is canceled. It is the façade the Connector/Session/MetadataPort
// machinery is built to sit behind.
type Subscriber struct {
	cfg       *Config
	connector *Connector

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscriber validates cfg and returns a Subscriber ready to Open.
func NewSubscriber(cfg *Config, sink EventSink) (*Subscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Subscriber{
		cfg:       cfg,
		connector: NewConnector(cfg, sink),
	}, nil
}

// Rebind replaces the active EventSink, taking effect on the next event
// delivered.
func (s *Subscriber) Rebind(sink EventSink) {
	s.connector.Rebind(sink)
}

// Metadata returns the metadata port and its adjustment registry.
func (s *Subscriber) Metadata() *MetadataPort {
	return s.connector.Metadata()
}

// Open starts the connect/run/reconnect loop in a background goroutine
// and returns immediately; callers observe progress via the EventSink.
// Open must not be called more than once per Subscriber.
func (s *Subscriber) Open(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		_ = s.connector.Run(ctx)
	}()
}

// Subscribe re-subscribes the live connection, if any, with a new
// SubscriptionInfo. Returns an error if the subscriber is not currently
// connected.
func (s *Subscriber) Subscribe(info SubscriptionInfo) error {
	session := s.connector.CurrentSession()
	if session == nil {
		return fmt.Errorf("client: not connected")
	}
	return session.Subscribe(info)
}

// Unsubscribe requests the publisher stop sending data on the live
// connection, if any.
func (s *Subscriber) Unsubscribe() error {
	session := s.connector.CurrentSession()
	if session == nil {
		return fmt.Errorf("client: not connected")
	}
	return session.Unsubscribe()
}

// Close cancels the connect/run/reconnect loop and waits for it to exit.
func (s *Subscriber) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
