// Motion planner boundary.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

// Planner is the step-pulse motion planner the positioning loop commands.
// The real implementation generates acceleration-ramped step pulses in
// hardware; the core only issues high-level commands at this boundary.
type Planner interface {
	// MoveTo commands motion to an absolute position, in steps.
	MoveTo(position int32)

	// SetSpeed sets the cruise speed in steps per second.
	SetSpeed(hz uint32)

	// SetAcceleration sets the ramp acceleration in steps/s^2.
	SetAcceleration(accel uint32)

	// StopMove decelerates and abandons the current move.
	StopMove()

	// SetCurrentPosition rebases the reported absolute position without
	// physical travel.
	SetCurrentPosition(position int32)

	// CurrentPosition returns the planner's reported absolute position.
	CurrentPosition() int32

	// IsRunning reports whether a move is queued or in progress.
	IsRunning() bool

	// IsMotorRunning reports whether the motor is physically moving,
	// including the deceleration tail of a stopped move.
	IsMotorRunning() bool

	// EnableOutputs forces the driver output stage on.
	EnableOutputs()

	// SetAutoEnable selects automatic power-down between moves.
	SetAutoEnable(on bool)

	// SetDirectionInverted sets the direction-pin polarity. Only call
	// while the motor is stopped.
	SetDirectionInverted(inverted bool)
}
