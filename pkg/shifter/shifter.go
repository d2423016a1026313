// Shift input controller: debounced edge handlers and hold gestures.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package shifter handles the mechanical shift buttons. ShiftUp and
// ShiftDown are wired to the pin-change interrupt path and must never
// block: the debounce window is kept in a single atomic timestamp and
// claimed by compare-and-swap, so concurrent edges on both buttons race
// safely. The hold gestures (factory reset, rescan) run from task
// context, not from interrupts.
package shifter

import (
	"sync/atomic"
	"time"

	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/config"
	"smartspin-go/pkg/log"
	"smartspin-go/pkg/state"
)

const (
	// DebounceDelay is the minimum spacing between accepted shift edges.
	DebounceDelay = 400 * time.Millisecond

	// ShiftersHoldForScan is how many consecutive supervisory cycles both
	// shifters must be held before a rescan fires.
	ShiftersHoldForScan = 2

	// ScanDelay is the minimum spacing between gesture-triggered scans.
	ScanDelay = 10 * time.Second

	// resetSaveCycles is how many times the factory reset rewrites the
	// settings file. The original firmware repeated the flash write to
	// ride out power glitches during the reset gesture.
	resetSaveCycles = 20

	// resetBlinkCount is the number of LED acknowledgment blinks before
	// a factory reset.
	resetBlinkCount = 10

	resetStepDelay = 200 * time.Millisecond
)

// Pins reads the physical shifter buttons. Implementations translate the
// active-low wiring; Pressed means the button is held.
type Pins interface {
	ShiftUpPressed() bool
	ShiftDownPressed() bool
}

// StatusLED drives the front-panel LED.
type StatusLED interface {
	Set(on bool)
}

// NopLED is a StatusLED for boards or sims without one.
type NopLED struct{}

func (NopLED) Set(bool) {}

// Controller owns the shifter input state.
type Controller struct {
	rt     *state.Runtime
	cfg    *config.Store
	pins   Pins
	logger *log.Logger

	// lastDebounce is the unix-millisecond time of the last accepted
	// edge. Zero re-arms immediately.
	lastDebounce atomic.Int64

	// Gesture state. Only the supervisor goroutine touches these.
	holdCount int
	lastScan  time.Time

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a shifter controller.
func New(rt *state.Runtime, cfg *config.Store, pins Pins, logger *log.Logger) *Controller {
	return &Controller{
		rt:     rt,
		cfg:    cfg,
		pins:   pins,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// debounce claims the debounce window. Returns true when the window had
// elapsed and this caller won the claim; lock-free so it is safe from
// both edge handlers at once.
func (c *Controller) debounce() bool {
	for {
		nowMs := c.now().UnixMilli()
		last := c.lastDebounce.Load()
		if nowMs-last <= DebounceDelay.Milliseconds() {
			return false
		}
		if c.lastDebounce.CompareAndSwap(last, nowMs) {
			return true
		}
		// Lost the race to the other edge handler; re-check.
	}
}

// rearmDebounce resets the window so the next genuine edge is accepted
// immediately. Used after a spurious (EMF) trigger consumed the window.
func (c *Controller) rearmDebounce() {
	c.lastDebounce.Store(0)
}

// ShiftUp is the shift-up edge handler. Never blocks.
func (c *Controller) ShiftUp() {
	if c.rt.ERGMode() {
		// Resistance is externally commanded; shifting has no meaning.
		return
	}
	if !c.debounce() {
		return
	}
	if !c.pins.ShiftUpPressed() {
		// Edge without a held button: interference, not a shift.
		c.rearmDebounce()
		return
	}
	if c.cfg.ShifterDir() {
		c.rt.AddShifterPosition(1)
	} else {
		c.rt.AddShifterPosition(-1)
	}
}

// ShiftDown is the shift-down edge handler. Never blocks.
func (c *Controller) ShiftDown() {
	if c.rt.ERGMode() {
		return
	}
	if !c.debounce() {
		return
	}
	if !c.pins.ShiftDownPressed() {
		c.rearmDebounce()
		return
	}
	if c.cfg.ShifterDir() {
		c.rt.AddShifterPosition(-1)
	} else {
		c.rt.AddShifterPosition(1)
	}
}

// BothHeld reports whether both shift buttons are currently held.
func (c *Controller) BothHeld() bool {
	return c.pins.ShiftUpPressed() && c.pins.ShiftDownPressed()
}

// ResetIfShiftersHeld checks the boot-time factory reset gesture. When
// both shifters are held at startup it blinks the LED, rewrites factory
// defaults to persistent storage, and requests a full restart. Called
// once during boot, before the loops start.
func (c *Controller) ResetIfShiftersHeld(led StatusLED, restart func()) {
	if !c.BothHeld() {
		return
	}
	c.logger.Warnf("Resetting to defaults via shifter buttons")

	for i := 0; i < resetBlinkCount; i++ {
		led.Set(true)
		c.sleep(resetStepDelay)
		led.Set(false)
		c.sleep(resetStepDelay)
	}
	for i := 0; i < resetSaveCycles; i++ {
		c.cfg.SetDefaults()
		c.sleep(resetStepDelay)
		if err := c.cfg.Save(); err != nil {
			c.logger.Errorf("Factory reset save failed: %v", err)
		}
		c.sleep(resetStepDelay)
	}
	restart()
}

// ScanIfShiftersHeld checks the hold-to-rescan gesture. Called once per
// slow supervisory cycle. The gesture needs ShiftersHoldForScan
// consecutive cycles with both buttons held, and a ScanDelay cooldown
// between triggers, so a single glitched sample can never start a scan.
func (c *Controller) ScanIfShiftersHeld(client ble.Client, led StatusLED) {
	if !c.BothHeld() {
		c.holdCount = 0
		return
	}

	c.holdCount++
	c.logger.Infof("Shifters held %d", c.holdCount)
	if c.holdCount < ShiftersHoldForScan {
		return
	}
	c.holdCount = 0

	now := c.now()
	if now.Sub(c.lastScan) < ScanDelay {
		c.logger.Infof("Shifters held but scan cooldown not elapsed")
		return
	}
	c.lastScan = now

	client.ResetDevices()
	client.ServerScan(true)
	led.Set(false)
	c.logger.Infof("Scan from buttons")
}
