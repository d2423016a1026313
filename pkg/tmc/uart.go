// TMC single-wire UART datagram framing.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package tmc

import (
	"errors"
	"fmt"
	"io"
)

const (
	syncByte   = 0x05
	masterAddr = 0xFF

	writeDatagramLen = 8
	readRequestLen   = 4
	readReplyLen     = 8

	// replyScanLimit bounds how many bytes we inspect while hunting for a
	// reply datagram; on a single-wire bus the request echo precedes it.
	replyScanLimit = 32
)

var (
	ErrNoReply  = errors.New("tmc: no reply datagram")
	ErrBadCRC   = errors.New("tmc: reply CRC mismatch")
	ErrBadReply = errors.New("tmc: reply for wrong register")
)

// crc8 computes the TMC UART checksum over a datagram prefix: CRC-8
// with polynomial x^8+x^2+x+1, bits fed LSB first.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		for j := 0; j < 8; j++ {
			if (crc>>7)^(b&1) != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
			b >>= 1
		}
	}
	return crc
}

// uartBus frames register access datagrams over a serial byte stream.
type uartBus struct {
	rw        io.ReadWriter
	slaveAddr uint8
}

func newUARTBus(rw io.ReadWriter, slaveAddr uint8) *uartBus {
	return &uartBus{rw: rw, slaveAddr: slaveAddr}
}

// writeDatagram encodes a register write: sync, slave address, register
// address with the write bit, four data bytes MSB first, CRC.
func writeDatagram(slaveAddr, reg uint8, value uint32) []byte {
	d := []byte{
		syncByte,
		slaveAddr,
		reg | 0x80,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
		0,
	}
	d[writeDatagramLen-1] = crc8(d[:writeDatagramLen-1])
	return d
}

// readRequestDatagram encodes a register read request.
func readRequestDatagram(slaveAddr, reg uint8) []byte {
	d := []byte{syncByte, slaveAddr, reg, 0}
	d[readRequestLen-1] = crc8(d[:readRequestLen-1])
	return d
}

// WriteRegister transmits a register write. The driver sends no
// acknowledgment; callers wanting confirmation compare IFCNT around the
// write.
func (u *uartBus) WriteRegister(reg uint8, value uint32) error {
	d := writeDatagram(u.slaveAddr, reg, value)
	if _, err := u.rw.Write(d); err != nil {
		return fmt.Errorf("tmc: write register %#02x: %w", reg, err)
	}
	return nil
}

// ReadRegister transmits a read request and scans the receive stream
// for the matching reply, skipping the request's own echo.
func (u *uartBus) ReadRegister(reg uint8) (uint32, error) {
	req := readRequestDatagram(u.slaveAddr, reg)
	if _, err := u.rw.Write(req); err != nil {
		return 0, fmt.Errorf("tmc: read register %#02x: %w", reg, err)
	}

	buf := make([]byte, 0, replyScanLimit)
	tmp := make([]byte, replyScanLimit)
	for len(buf) < replyScanLimit {
		n, err := u.rw.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if value, found, perr := scanReply(buf, reg); found {
				return value, perr
			}
		}
		if err != nil {
			return 0, fmt.Errorf("tmc: read register %#02x: %w", reg, err)
		}
		if n == 0 {
			break
		}
	}
	return 0, ErrNoReply
}

// scanReply looks for a reply datagram (master-addressed) for reg in
// buf. found is true once a complete candidate datagram is present,
// whether or not it validates.
func scanReply(buf []byte, reg uint8) (value uint32, found bool, err error) {
	for i := 0; i+readReplyLen <= len(buf); i++ {
		if buf[i] != syncByte || buf[i+1] != masterAddr {
			continue
		}
		d := buf[i : i+readReplyLen]
		if crc8(d[:readReplyLen-1]) != d[readReplyLen-1] {
			return 0, true, ErrBadCRC
		}
		if d[2]&0x7F != reg {
			return 0, true, ErrBadReply
		}
		value = uint32(d[3])<<24 | uint32(d[4])<<16 | uint32(d[5])<<8 | uint32(d[6])
		return value, true, nil
	}
	return 0, false, nil
}
