// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package shifter

import (
	"path/filepath"
	"testing"
	"time"

	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/config"
	"smartspin-go/pkg/log"
	"smartspin-go/pkg/state"
)

type fakePins struct {
	up   bool
	down bool
}

func (p *fakePins) ShiftUpPressed() bool   { return p.up }
func (p *fakePins) ShiftDownPressed() bool { return p.down }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController(t *testing.T) (*Controller, *fakePins, *fakeClock, *state.Runtime, *config.Store) {
	t.Helper()
	rt := state.New(-1000, 1000)
	cfg := config.NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	pins := &fakePins{}
	clock := &fakeClock{t: time.Unix(1000, 0)}

	c := New(rt, cfg, pins, log.Discard())
	c.now = clock.now
	c.sleep = func(time.Duration) {}
	return c, pins, clock, rt, cfg
}

func TestShiftAdjustsPosition(t *testing.T) {
	c, pins, clock, rt, _ := newTestController(t)
	pins.up = true
	pins.down = true

	// Default direction: shift up moves toward min (less resistance).
	c.ShiftUp()
	if got := rt.ShifterPosition(); got != -1 {
		t.Errorf("after ShiftUp: position = %d, want -1", got)
	}

	clock.advance(DebounceDelay + time.Millisecond)
	c.ShiftDown()
	if got := rt.ShifterPosition(); got != 0 {
		t.Errorf("after ShiftDown: position = %d, want 0", got)
	}
}

func TestShiftDirectionInverted(t *testing.T) {
	c, pins, clock, rt, cfg := newTestController(t)
	cfg.Update(func(s *config.Settings) { s.ShifterDir = true })
	pins.up = true
	pins.down = true

	c.ShiftUp()
	if got := rt.ShifterPosition(); got != 1 {
		t.Errorf("after inverted ShiftUp: position = %d, want 1", got)
	}
	clock.advance(DebounceDelay + time.Millisecond)
	c.ShiftDown()
	if got := rt.ShifterPosition(); got != 0 {
		t.Errorf("after inverted ShiftDown: position = %d, want 0", got)
	}
}

func TestDebounceSuppressesRapidTriggers(t *testing.T) {
	c, pins, clock, rt, _ := newTestController(t)
	pins.up = true

	c.ShiftUp()
	// Bounce storm inside the window: no further state change.
	for i := 0; i < 10; i++ {
		clock.advance(10 * time.Millisecond)
		c.ShiftUp()
	}
	if got := rt.ShifterPosition(); got != -1 {
		t.Errorf("position = %d after bounce storm, want -1", got)
	}

	clock.advance(DebounceDelay + time.Millisecond)
	c.ShiftUp()
	if got := rt.ShifterPosition(); got != -2 {
		t.Errorf("position = %d after window elapsed, want -2", got)
	}
}

func TestShiftIgnoredInERGMode(t *testing.T) {
	c, pins, _, rt, _ := newTestController(t)
	pins.up = true
	pins.down = true
	rt.SetERGMode(true)

	c.ShiftUp()
	c.ShiftDown()
	if got := rt.ShifterPosition(); got != 0 {
		t.Errorf("position = %d in ERG mode, want 0", got)
	}
}

func TestSpuriousTriggerRearmsDebounce(t *testing.T) {
	c, pins, clock, rt, _ := newTestController(t)

	// Edge fires but the pin read does not confirm a held button.
	pins.up = false
	c.ShiftUp()
	if got := rt.ShifterPosition(); got != 0 {
		t.Errorf("position = %d after spurious trigger, want 0", got)
	}

	// A genuine edge right after must be accepted: the spurious trigger
	// must not have consumed the debounce window.
	clock.advance(time.Millisecond)
	pins.up = true
	c.ShiftUp()
	if got := rt.ShifterPosition(); got != -1 {
		t.Errorf("position = %d after genuine trigger, want -1", got)
	}
}

func TestScanGestureHoldThreshold(t *testing.T) {
	c, pins, _, _, _ := newTestController(t)
	client := ble.NewPeerState()
	led := NopLED{}

	// Held for fewer than the threshold: no scan.
	pins.up = true
	pins.down = true
	for i := 0; i < ShiftersHoldForScan-1; i++ {
		c.ScanIfShiftersHeld(client, led)
	}
	if got := client.ScanRequests(); got != 0 {
		t.Fatalf("scan requests = %d before threshold, want 0", got)
	}

	// Release resets the consecutive count.
	pins.up = false
	c.ScanIfShiftersHeld(client, led)
	pins.up = true
	for i := 0; i < ShiftersHoldForScan-1; i++ {
		c.ScanIfShiftersHeld(client, led)
	}
	if got := client.ScanRequests(); got != 0 {
		t.Fatalf("scan requests = %d after release reset, want 0", got)
	}

	// One more held cycle reaches the threshold: exactly one scan.
	c.ScanIfShiftersHeld(client, led)
	if got := client.ScanRequests(); got != 1 {
		t.Errorf("scan requests = %d at threshold, want 1", got)
	}
	if got := client.Resets(); got != 1 {
		t.Errorf("device resets = %d, want 1", got)
	}
}

func TestScanGestureCooldown(t *testing.T) {
	c, pins, clock, _, _ := newTestController(t)
	client := ble.NewPeerState()
	led := NopLED{}
	pins.up = true
	pins.down = true

	for i := 0; i < ShiftersHoldForScan; i++ {
		c.ScanIfShiftersHeld(client, led)
	}
	if got := client.ScanRequests(); got != 1 {
		t.Fatalf("scan requests = %d, want 1", got)
	}

	// Holding through the cooldown must not retrigger.
	for i := 0; i < 5*ShiftersHoldForScan; i++ {
		clock.advance(time.Second)
		c.ScanIfShiftersHeld(client, led)
	}
	if got := client.ScanRequests(); got != 1 {
		t.Errorf("scan requests = %d within cooldown, want 1", got)
	}

	// After the cooldown the gesture arms again.
	clock.advance(ScanDelay)
	for i := 0; i < ShiftersHoldForScan; i++ {
		c.ScanIfShiftersHeld(client, led)
	}
	if got := client.ScanRequests(); got != 2 {
		t.Errorf("scan requests = %d after cooldown, want 2", got)
	}
}

func TestResetIfShiftersHeld(t *testing.T) {
	c, pins, _, _, cfg := newTestController(t)
	cfg.Update(func(s *config.Settings) { s.ShiftStep = 123 })

	restarted := false
	c.ResetIfShiftersHeld(NopLED{}, func() { restarted = true })
	if restarted {
		t.Fatal("restart requested without the gesture")
	}

	pins.up = true
	pins.down = true
	c.ResetIfShiftersHeld(NopLED{}, func() { restarted = true })
	if !restarted {
		t.Fatal("restart not requested")
	}
	if got := cfg.Get(); got != config.Defaults() {
		t.Errorf("settings after reset = %+v, want defaults", got)
	}

	// Defaults were persisted, not just applied in memory.
	reloaded := config.NewStore(cfg.Path())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if got := reloaded.Get(); got != config.Defaults() {
		t.Errorf("persisted settings = %+v, want defaults", got)
	}
}
