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
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ConnectOutcome classifies one connect attempt per §4.8 of the
// specification.
type ConnectOutcome int

// Connect attempt outcomes.
const (
	// OutcomeSuccess means the TCP connection and DEFINEOPERATIONALMODES
	// handshake both completed.
	OutcomeSuccess ConnectOutcome = iota
	// OutcomeFailed means the attempt failed for a retryable reason (DNS,
	// refused connection, handshake I/O error).
	OutcomeFailed
	// OutcomeCanceled means the caller's context was canceled before the
	// attempt completed; the connector does not count this against
	// MaxRetries.
	OutcomeCanceled
)

// String renders a ConnectOutcome by name.
func (o ConnectOutcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// Connector is the reconnect loop described in §4.8: it repeatedly dials,
// hands the resulting Session to Run, and -- when AutoReconnect is set --
// waits out an exponential back-off before trying again, re-emitting the
// last subscription on every successful reconnect.
type Connector struct {
	cfg    *Config
	dialer Dialer

	metadata *MetadataPort
	events   *eventSinkHolder

	backoff *backoff

	sessionMu sync.RWMutex
	session   *Session
}

// NewConnector builds a Connector from cfg, using the production TCP
// dialer. Tests that want to fake the network inject their own Dialer via
// NewConnectorWithDialer.
func NewConnector(cfg *Config, sink EventSink) *Connector {
	return NewConnectorWithDialer(cfg, sink, NewTCPDialer())
}

// NewConnectorWithDialer builds a Connector using dialer, letting tests
// substitute a fake network without binding real sockets.
func NewConnectorWithDialer(cfg *Config, sink EventSink, dialer Dialer) *Connector {
	return &Connector{
		cfg:      cfg,
		dialer:   dialer,
		metadata: NewMetadataPort(),
		events:   newEventSinkHolder(sink),
		backoff:  newBackoff(cfg.Backoff),
	}
}

// Rebind replaces the active EventSink.
func (c *Connector) Rebind(sink EventSink) {
	c.events.Rebind(sink)
}

// Metadata returns the connector's metadata port and adjustment registry.
func (c *Connector) Metadata() *MetadataPort {
	return c.metadata
}

// CurrentSession returns the most recently established Session, or nil if
// none has connected yet. Callers use it to issue Subscribe/Unsubscribe
// while connected.
func (c *Connector) CurrentSession() *Session {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.session
}

// Run drives the connect/run/reconnect loop until ctx is canceled or
// MaxRetries is exhausted. It returns nil on a clean, user-requested
// shutdown (ctx canceled) and an error if reconnection gave up.
func (c *Connector) Run(ctx context.Context) error {
	for {
		outcome, session, err := c.connectOnce(ctx)
		switch outcome {
		case OutcomeCanceled:
			return nil
		case OutcomeFailed:
			c.events.error(fmt.Errorf("client: connect attempt failed: %w", err))
			if !c.cfg.AutoReconnect || c.backoff.exhausted() {
				return fmt.Errorf("client: giving up after %w", err)
			}
			wait := c.backoff.next()
			log.Debugf("sttp: reconnecting in %s", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		case OutcomeSuccess:
			c.backoff.reset()
			c.sessionMu.Lock()
			c.session = session
			c.sessionMu.Unlock()

			runErr := session.Run(ctx)

			c.sessionMu.Lock()
			c.session = nil
			c.sessionMu.Unlock()

			if ctx.Err() != nil {
				return nil
			}
			if runErr != nil && !c.cfg.AutoReconnect {
				return runErr
			}
			if c.backoff.exhausted() {
				return fmt.Errorf("client: giving up after session ended: %w", runErr)
			}
			wait := c.backoff.next()
			log.Debugf("sttp: session ended (%v), reconnecting in %s", runErr, wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
	}
}

func (c *Connector) connectOnce(ctx context.Context) (ConnectOutcome, *Session, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeCanceled, nil, nil
	}

	stream, err := c.dialer.Dial(ctx, c.cfg.Host, c.cfg.Port, c.cfg.SocketTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return OutcomeCanceled, nil, nil
		}
		return OutcomeFailed, nil, err
	}

	var udpConn *net.UDPConn
	var udp udpReader
	if c.cfg.Subscription.UDPPort > 0 {
		udpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: c.cfg.Subscription.UDPPort})
		if err != nil {
			stream.Close()
			return OutcomeFailed, nil, fmt.Errorf("binding data channel UDP port %d: %w", c.cfg.Subscription.UDPPort, err)
		}
		udp = udpConn
	}

	session := NewSession(c.cfg, stream, udp, c.metadata, c.events)
	if err := session.Handshake(c.cfg); err != nil {
		stream.Close()
		if udpConn != nil {
			udpConn.Close()
		}
		return OutcomeFailed, nil, err
	}

	return OutcomeSuccess, session, nil
}
