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
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gridprotectionalliance/go-sttp/transport"
)

// Dialer opens the TCP command channel to a publisher. It is an interface
// so reconnect tests can substitute a fake without binding real sockets.
type Dialer interface {
	Dial(ctx context.Context, host string, port int, timeout time.Duration) (*transport.Stream, error)
}

// tcpDialer is the production Dialer: a plain TCP connection with
// TCP_NODELAY set, since STTP's command/response traffic is latency
// sensitive and Nagle's algorithm would needlessly batch small frames.
type tcpDialer struct{}

// NewTCPDialer returns the default Dialer used by Connector.
func NewTCPDialer() Dialer {
	return tcpDialer{}
}

func (tcpDialer) Dial(ctx context.Context, host string, port int, timeout time.Duration) (*transport.Stream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("client: dialing %s:%d: %w", host, port, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if ok {
		if err := setNoDelay(tcpConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("client: setting TCP_NODELAY on %s:%d: %w", host, port, err)
		}
	}
	return transport.NewStream(conn), nil
}

// setNoDelay disables Nagle's algorithm via the raw file descriptor,
// matching the reference implementation's socket tuning style (raw
// unix.SetsockoptInt rather than relying on net.TCPConn.SetNoDelay, so the
// same option path is available if this grows an RX-timestamping variant
// the way the teacher's UDP event socket has one).
func setNoDelay(conn *net.TCPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
