// Shared runtime state for the resistance controller.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package state holds the single source of truth shared between the
// positioning loop, the maintenance supervisor, and the shifter interrupt
// path. Every field is an atomic scalar so the interrupt-style entry
// points never block; composite consistency across fields is deliberately
// not promised (see the staleness notes on each consumer).
package state

import "sync/atomic"

// Runtime is the shared runtime state. One instance is created at boot
// and lives for the process lifetime.
//
// Writer discipline:
//   - shifterPosition: written by the shifter interrupt path, clamped by
//     the supervisor within one supervisory tick.
//   - minStep/maxStep: written by the external command layer, read by
//     the positioning loop and supervisor.
//   - ergMode/targetIncline: written by the external command layer.
//   - currentIncline: written only by the positioning loop.
type Runtime struct {
	shifterPosition atomic.Int32
	minStep         atomic.Int32
	maxStep         atomic.Int32
	ergMode         atomic.Bool
	targetIncline   atomic.Int32
	currentIncline  atomic.Uint64 // float64 bits
}

// New returns a Runtime with the given travel bounds. minStep must not
// exceed maxStep.
func New(minStep, maxStep int32) *Runtime {
	r := &Runtime{}
	r.minStep.Store(minStep)
	r.maxStep.Store(maxStep)
	return r
}

func (r *Runtime) ShifterPosition() int32        { return r.shifterPosition.Load() }
func (r *Runtime) SetShifterPosition(pos int32)  { r.shifterPosition.Store(pos) }
func (r *Runtime) AddShifterPosition(d int32)    { r.shifterPosition.Add(d) }
func (r *Runtime) MinStep() int32                { return r.minStep.Load() }
func (r *Runtime) MaxStep() int32                { return r.maxStep.Load() }
func (r *Runtime) ERGMode() bool                 { return r.ergMode.Load() }
func (r *Runtime) SetERGMode(on bool)            { r.ergMode.Store(on) }
func (r *Runtime) TargetIncline() int32          { return r.targetIncline.Load() }
func (r *Runtime) SetTargetIncline(val int32)    { r.targetIncline.Store(val) }

// SetSteps updates both travel bounds. Bounds are stored max-first so a
// concurrent reader never observes min above the (new or old) max when
// the window is being widened.
func (r *Runtime) SetSteps(min, max int32) {
	r.maxStep.Store(max)
	r.minStep.Store(min)
}

// CurrentIncline returns the last actuator position published by the
// positioning loop.
func (r *Runtime) CurrentIncline() float64 {
	return atomicLoadFloat(&r.currentIncline)
}

// SetCurrentIncline publishes the actuator position. Only the positioning
// loop writes this.
func (r *Runtime) SetCurrentIncline(v float64) {
	atomicStoreFloat(&r.currentIncline, v)
}
