// Auxiliary bike serial port adapter.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package peloton

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// BaudRate is the bike's fixed auxiliary serial rate.
const BaudRate = 19200

// Port adapts a hardware serial device to the Transport interface. A
// background goroutine drains the device so BytesAvailable reflects
// pending traffic the way a receive FIFO would, letting Poll stay
// non-blocking.
type Port struct {
	port serial.Port

	mu      sync.Mutex
	pending []byte
	readErr error
	closed  bool
}

// OpenPort opens the auxiliary serial device and starts its reader.
func OpenPort(device string) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	sp, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open aux serial %s: %w", device, err)
	}
	p := &Port{port: sp}
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := p.port.Read(buf)
		p.mu.Lock()
		if n > 0 {
			p.pending = append(p.pending, buf[:n]...)
			// Bound the backlog if nothing polls for a while.
			if len(p.pending) > 4*bufSize {
				p.pending = p.pending[len(p.pending)-4*bufSize:]
			}
		}
		if err != nil {
			if !p.closed {
				p.readErr = err
			}
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// BytesAvailable reports how many received bytes are pending.
func (p *Port) BytesAvailable() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Read drains up to len(b) pending bytes.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 && p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Write transmits bytes to the device.
func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close stops the reader and closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.port.Close()
}
