// UDP telemetry appender.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

// UDPAppender sends each flushed batch as one datagram per line to a
// fixed target, typically a broadcast address on the local network. Lost
// datagrams are lost; the appender never retries.
type UDPAppender struct {
	mu     sync.Mutex
	conn   net.Conn
	target string
}

// NewUDPAppender dials the target address (host:port).
func NewUDPAppender(target string) (*UDPAppender, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, fmt.Errorf("log: unable to dial udp %s: %w", target, err)
	}
	return &UDPAppender{conn: conn, target: target}, nil
}

// Append implements Appender.
func (a *UDPAppender) Append(lines []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return
	}
	for _, line := range lines {
		// One line per datagram keeps receivers simple.
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		_, _ = a.conn.Write([]byte(line))
	}
}

// Close implements Appender.
func (a *UDPAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
