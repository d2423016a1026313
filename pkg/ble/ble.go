// Wireless peer boundary for the resistance controller.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package ble defines the boundary to the wireless stack. The radio,
// pairing, and GATT plumbing live elsewhere; the control loops only need
// the operations and connection flags below, injected at construction so
// tests can substitute fakes.
package ble

// Client is the central-role side of the radio: it discovers and holds
// connections to the rider's sensors (heart rate, power).
type Client interface {
	// ResetDevices forgets all discovered peers.
	ResetDevices()

	// ServerScan starts (true) or queues (false) a discovery scan.
	ServerScan(active bool)

	// IsScanning reports whether a discovery scan is in flight.
	IsScanning() bool

	// StopScan force-stops a running scan.
	StopScan()

	// ConnectedHR reports whether a heart-rate sensor is connected.
	ConnectedHR() bool

	// ConnectedPM reports whether a power meter is connected.
	ConnectedPM() bool
}

// Server is the peripheral-role side: the training application connects
// to it.
type Server interface {
	// NotifyShift pushes the current shifter position to connected peers.
	NotifyShift()
}

// ClientCounter reports the number of active wireless sessions. The
// positioning loop uses it for the idle-power policy.
type ClientCounter interface {
	ConnectedClientCount() int
}

// SensorIntake is the shared ingest point for sensor payloads, wherever
// they arrive from (GATT notifications or the auxiliary serial framer).
type SensorIntake interface {
	// CollectAndSet hands one raw payload to the sensor-data factory,
	// tagged with its source identifier.
	CollectAndSet(source string, payload []byte)
}
