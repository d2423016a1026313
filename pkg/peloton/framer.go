// Auxiliary bike serial framing.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package peloton speaks the auxiliary bike's serial protocol: a
// length-free framing where each sensor payload is bounded by fixed
// sentinel bytes inside a continuous, unsynchronized byte stream. The
// byte values here are the wire contract with the bike and must not
// change.
package peloton

import (
	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/log"
)

const (
	// FrameHeader and FrameFooter bound one sensor payload.
	FrameHeader = 0xF1
	FrameFooter = 0xF6

	// SourceID tags frames handed to the sensor intake.
	SourceID = "peloton"

	// TxCheckInterval is the number of polls between outbound query
	// frames.
	TxCheckInterval = 20

	// bufSize is the fixed read buffer capacity, sized for one frame
	// plus leading garbage at the poll cadence.
	bufSize = 40

	// minAvailable is the threshold below which a poll does not read:
	// the smallest complete frame is 8 bytes on the wire.
	minAvailable = 8
)

// Query frames keeping the bike continuously reporting. The third byte
// is the low byte of the sum of the preceding two.
var (
	RequestWatts   = []byte{0xF5, 0x44, 0x39, 0xF6}
	RequestCadence = []byte{0xF5, 0x41, 0x36, 0xF6}
)

// Transport is the raw auxiliary serial boundary.
type Transport interface {
	// BytesAvailable reports how many received bytes are pending.
	BytesAvailable() int

	// Read drains up to len(p) pending bytes.
	Read(p []byte) (int, error)

	// Write queues bytes for transmission.
	Write(p []byte) (int, error)
}

// Framer extracts sensor frames from the aux stream and periodically
// transmits the alternating query frames. Owned by the supervisor loop;
// not safe for concurrent use.
type Framer struct {
	transport Transport
	intake    ble.SensorIntake
	logger    *log.Logger

	txEnabled bool
	txCheck   int
	alternate bool

	buf [bufSize]byte
}

// NewFramer returns a framer. With txEnabled the first poll transmits
// immediately.
func NewFramer(transport Transport, intake ble.SensorIntake, txEnabled bool, logger *log.Logger) *Framer {
	return &Framer{
		transport: transport,
		intake:    intake,
		logger:    logger,
		txEnabled: txEnabled,
		txCheck:   TxCheckInterval,
	}
}

// Poll runs one receive/transmit cycle. Called every supervisory tick.
func (f *Framer) Poll() {
	if f.transport.BytesAvailable() >= minAvailable {
		// Inbound traffic re-arms an immediate query so the bike never
		// goes quiet waiting for us.
		f.txCheck = TxCheckInterval

		n, err := f.transport.Read(f.buf[:])
		if err != nil {
			f.logger.Warnf("Aux serial read failed: %v", err)
		} else if frame, ok := extractFrame(f.buf[:n]); ok {
			f.intake.CollectAndSet(SourceID, frame)
		}
	}

	if !f.txEnabled {
		return
	}
	if f.txCheck >= TxCheckInterval {
		req := RequestCadence
		if f.alternate {
			req = RequestWatts
		}
		if _, err := f.transport.Write(req); err != nil {
			f.logger.Warnf("Aux serial write failed: %v", err)
		}
		f.alternate = !f.alternate
		f.txCheck = 0
	} else {
		f.txCheck++
	}
}

// extractFrame returns the first header-to-footer inclusive slice in
// data. A header without a footer in the same read yields no frame; the
// partial data is dropped and the next complete frame resynchronizes the
// stream.
func extractFrame(data []byte) ([]byte, bool) {
	for i := 0; i < len(data); i++ {
		if data[i] != FrameHeader {
			continue
		}
		for k := i + 1; k < len(data); k++ {
			if data[k] == FrameFooter {
				frame := make([]byte, k+1-i)
				copy(frame, data[i:k+1])
				return frame, true
			}
		}
		return nil, false
	}
	return nil, false
}
