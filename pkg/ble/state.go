// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package ble

import "sync/atomic"

// PeerState is a concrete Client/ClientCounter backed by atomics. The
// radio glue flips the flags from its callbacks; the loops read them
// lock-free. It stands in for the full stack in the sim build and in
// tests.
type PeerState struct {
	scanning    atomic.Bool
	connectedHR atomic.Bool
	connectedPM atomic.Bool
	clientCount atomic.Int32

	scanRequests atomic.Int32
	resets       atomic.Int32
}

// NewPeerState returns a disconnected PeerState.
func NewPeerState() *PeerState {
	return &PeerState{}
}

func (p *PeerState) ResetDevices() {
	p.resets.Add(1)
	p.connectedHR.Store(false)
	p.connectedPM.Store(false)
}

func (p *PeerState) ServerScan(active bool) {
	p.scanRequests.Add(1)
	if active {
		p.scanning.Store(true)
	}
}

func (p *PeerState) IsScanning() bool { return p.scanning.Load() }
func (p *PeerState) StopScan()        { p.scanning.Store(false) }
func (p *PeerState) ConnectedHR() bool { return p.connectedHR.Load() }
func (p *PeerState) ConnectedPM() bool { return p.connectedPM.Load() }

func (p *PeerState) ConnectedClientCount() int { return int(p.clientCount.Load()) }

// Setters for the radio glue (and tests).

func (p *PeerState) SetConnectedHR(v bool)  { p.connectedHR.Store(v) }
func (p *PeerState) SetConnectedPM(v bool)  { p.connectedPM.Store(v) }
func (p *PeerState) SetClientCount(n int)   { p.clientCount.Store(int32(n)) }
func (p *PeerState) SetScanning(v bool)     { p.scanning.Store(v) }

// ScanRequests returns the number of ServerScan calls observed.
func (p *PeerState) ScanRequests() int { return int(p.scanRequests.Load()) }

// Resets returns the number of ResetDevices calls observed.
func (p *PeerState) Resets() int { return int(p.resets.Load()) }
