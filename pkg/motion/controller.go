// Actuator positioning loop.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package motion converts the shared runtime state into clamped motion
// commands, one command cycle per loop iteration. The loop is the only
// writer of targetPosition (unless external control is engaged) and of
// the published actuator position; everything it reads is re-read every
// cycle, so configuration and mode changes take effect within one
// iteration.
package motion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/config"
	"smartspin-go/pkg/log"
	"smartspin-go/pkg/state"
)

const (
	// StepperSpeed is the cruise speed in simulation mode, steps/s.
	StepperSpeed = 1500

	// ErgSpeed is the faster cruise speed while resistance is externally
	// commanded, steps/s.
	ErgSpeed = 3000

	// Acceleration is the ramp acceleration, steps/s^2.
	Acceleration = 3000

	// cycleDelay paces the loop: one motion command roughly every
	// cycleDelay once the command itself returns.
	cycleDelay = 100 * time.Millisecond

	// settleDelay is the wait for the planner to settle around a
	// stop/rebase sequence.
	settleDelay = 100 * time.Millisecond
)

// Controller runs the positioning loop.
type Controller struct {
	rt      *state.Runtime
	cfg     *config.Store
	clients ble.ClientCounter
	logger  *log.Logger

	plannerMu sync.RWMutex
	planner   Planner

	targetPosition   atomic.Int32
	externalControl  atomic.Bool
	syncMode         atomic.Bool
	stepperIsRunning atomic.Bool

	// stepperDir is the applied direction polarity, compared against the
	// configured value each cycle for hot reload.
	stepperDir bool

	sleep func(time.Duration)
}

// NewController returns a positioning controller with no planner
// attached. Iterations are no-ops until AttachPlanner is called.
func NewController(rt *state.Runtime, cfg *config.Store, clients ble.ClientCounter, logger *log.Logger) *Controller {
	return &Controller{
		rt:      rt,
		cfg:     cfg,
		clients: clients,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// AttachPlanner installs the motion planner and applies the initial
// speed, acceleration, and direction polarity.
func (c *Controller) AttachPlanner(p Planner) {
	c.stepperDir = c.cfg.StepperDir()
	p.SetDirectionInverted(c.stepperDir)
	p.SetAutoEnable(true)
	p.SetSpeed(StepperSpeed)
	p.SetAcceleration(Acceleration)

	c.plannerMu.Lock()
	c.planner = p
	c.plannerMu.Unlock()
	c.logger.Infof("Motion planner attached")
}

func (c *Controller) getPlanner() Planner {
	c.plannerMu.RLock()
	defer c.plannerMu.RUnlock()
	return c.planner
}

// TargetPosition returns the last computed (unclamped) target.
func (c *Controller) TargetPosition() int32 {
	return c.targetPosition.Load()
}

// SetTargetPosition writes the target directly. Meaningful only while
// external control is engaged; otherwise the next cycle overwrites it.
func (c *Controller) SetTargetPosition(pos int32) {
	c.targetPosition.Store(pos)
}

// SetExternalControl hands target computation to an external writer
// (true) or back to the loop (false).
func (c *Controller) SetExternalControl(on bool) {
	c.externalControl.Store(on)
}

// RequestSync asks the loop to rebase the planner's reported position to
// the current target without physical travel. The flag clears itself
// once the rebase has been performed.
func (c *Controller) RequestSync() {
	c.syncMode.Store(true)
}

// StepperIsRunning reports whether the planner had motion in flight at
// the start of the last cycle.
func (c *Controller) StepperIsRunning() bool {
	return c.stepperIsRunning.Load()
}

// Run executes the positioning loop until ctx is cancelled. The loop
// never terminates on its own; restart-as-recovery is the only other
// teardown path.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.runOnce(ctx)
	}
}

// runOnce performs one command cycle.
func (c *Controller) runOnce(ctx context.Context) {
	p := c.getPlanner()
	if p == nil {
		// No driver yet; keep idling at the loop cadence.
		c.sleep(cycleDelay)
		return
	}

	c.stepperIsRunning.Store(p.IsRunning())

	if !c.externalControl.Load() {
		if c.rt.ERGMode() {
			// Shifter is not used; the commanded target is the setpoint.
			p.SetSpeed(ErgSpeed)
			c.targetPosition.Store(c.rt.TargetIncline())
		} else {
			p.SetSpeed(StepperSpeed)
			target := c.rt.ShifterPosition() * c.cfg.ShiftStep()
			target += int32(float64(c.rt.TargetIncline()) * c.cfg.InclineMultiplier())
			c.targetPosition.Store(target)
		}
	}

	if c.syncMode.Load() {
		p.StopMove()
		c.sleep(settleDelay)
		p.SetCurrentPosition(c.targetPosition.Load())
		c.sleep(settleDelay)
		c.syncMode.Store(false)
	}

	// Authoritative travel clamp. Upstream writers are expected to stay
	// inside the bounds but this is the enforcement point.
	target := c.targetPosition.Load()
	minStep, maxStep := c.rt.MinStep(), c.rt.MaxStep()
	switch {
	case target >= minStep && target <= maxStep:
		p.MoveTo(target)
	case target < minStep:
		p.MoveTo(minStep)
	default:
		p.MoveTo(maxStep)
	}

	c.sleep(cycleDelay)
	c.rt.SetCurrentIncline(float64(p.CurrentPosition()))

	if c.clients.ConnectedClientCount() > 0 {
		// Hold position against head-tube slack while a client rides.
		p.SetAutoEnable(false)
		p.EnableOutputs()
	} else {
		// Let the motor cool between moves. Shifting still works.
		p.SetAutoEnable(true)
	}

	if dir := c.cfg.StepperDir(); dir != c.stepperDir {
		c.waitMotorStop(ctx, p)
		c.stepperDir = dir
		p.SetDirectionInverted(dir)
		c.logger.Infof("Stepper direction polarity reapplied")
	}
}

// waitMotorStop blocks until the motor is physically stopped or ctx is
// cancelled.
func (c *Controller) waitMotorStop(ctx context.Context, p Planner) {
	for p.IsMotorRunning() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.sleep(settleDelay)
	}
}

// MotorStop abandons the current move and rebases to the target so the
// loop does not immediately re-command it. With releaseTension the
// actuator backs off four shift steps to unload the mechanism.
func (c *Controller) MotorStop(releaseTension bool) {
	p := c.getPlanner()
	if p == nil {
		return
	}
	p.StopMove()
	target := c.targetPosition.Load()
	p.SetCurrentPosition(target)
	if releaseTension {
		p.MoveTo(target - c.cfg.ShiftStep()*4)
	}
}
