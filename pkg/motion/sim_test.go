// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import (
	"testing"
	"time"
)

func TestSimPlannerConvergesOnTarget(t *testing.T) {
	p := NewSimPlanner()
	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }
	p.last = now

	p.SetSpeed(1000)
	p.MoveTo(500)

	if !p.IsRunning() {
		t.Fatal("planner not running after MoveTo")
	}

	// 0.25 s at 1000 steps/s covers half the distance.
	now = now.Add(250 * time.Millisecond)
	if got := p.CurrentPosition(); got != 250 {
		t.Errorf("CurrentPosition() = %d at t=0.25s, want 250", got)
	}

	// Plenty of time: the planner stops exactly at target, no overshoot.
	now = now.Add(10 * time.Second)
	if got := p.CurrentPosition(); got != 500 {
		t.Errorf("CurrentPosition() = %d, want 500", got)
	}
	if p.IsRunning() {
		t.Error("planner still running at target")
	}
}

func TestSimPlannerStopMove(t *testing.T) {
	p := NewSimPlanner()
	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }
	p.last = now

	p.SetSpeed(1000)
	p.MoveTo(1000)
	now = now.Add(100 * time.Millisecond)
	p.StopMove()

	pos := p.CurrentPosition()
	if pos != 100 {
		t.Errorf("CurrentPosition() = %d after stop, want 100", pos)
	}
	now = now.Add(time.Second)
	if got := p.CurrentPosition(); got != pos {
		t.Errorf("position drifted to %d after StopMove", got)
	}
}

func TestSimPlannerRebase(t *testing.T) {
	p := NewSimPlanner()
	p.MoveTo(100)
	p.SetCurrentPosition(-40)

	if got := p.CurrentPosition(); got != -40 {
		t.Errorf("CurrentPosition() = %d after rebase, want -40", got)
	}
	if p.IsRunning() {
		t.Error("rebase must not leave a move in flight")
	}
}

func TestSimPlannerReverseTravel(t *testing.T) {
	p := NewSimPlanner()
	now := time.Unix(0, 0)
	p.now = func() time.Time { return now }
	p.last = now

	p.SetSpeed(100)
	p.SetCurrentPosition(50)
	p.MoveTo(-50)

	now = now.Add(500 * time.Millisecond)
	if got := p.CurrentPosition(); got != 0 {
		t.Errorf("CurrentPosition() = %d mid-travel, want 0", got)
	}
	now = now.Add(2 * time.Second)
	if got := p.CurrentPosition(); got != -50 {
		t.Errorf("CurrentPosition() = %d, want -50", got)
	}
}
