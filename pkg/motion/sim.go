// Simulated motion planner.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import (
	"sync"
	"time"
)

// SimPlanner is a software Planner: a constant-velocity integrator that
// tracks commanded position over wall-clock time. It backs the -sim
// bench mode and the tests; there is no acceleration ramp, the cruise
// speed applies immediately.
type SimPlanner struct {
	mu         sync.Mutex
	pos        float64
	target     float64
	speed      float64 // steps per second
	accel      float64
	autoEnable bool
	enabled    bool
	inverted   bool
	last       time.Time

	now func() time.Time
}

// NewSimPlanner returns a stopped planner at position zero.
func NewSimPlanner() *SimPlanner {
	p := &SimPlanner{
		speed:      1500,
		autoEnable: true,
		now:        time.Now,
	}
	p.last = p.now()
	return p
}

// advance integrates position up to the current time. Callers hold p.mu.
func (p *SimPlanner) advance() {
	now := p.now()
	dt := now.Sub(p.last).Seconds()
	p.last = now
	if dt <= 0 || p.pos == p.target {
		return
	}

	travel := p.speed * dt
	if p.target > p.pos {
		p.pos += travel
		if p.pos > p.target {
			p.pos = p.target
		}
	} else {
		p.pos -= travel
		if p.pos < p.target {
			p.pos = p.target
		}
	}
}

func (p *SimPlanner) MoveTo(position int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.target = float64(position)
	p.enabled = true
}

func (p *SimPlanner) SetSpeed(hz uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.speed = float64(hz)
}

func (p *SimPlanner) SetAcceleration(accel uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accel = float64(accel)
}

func (p *SimPlanner) StopMove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.target = p.pos
}

func (p *SimPlanner) SetCurrentPosition(position int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = float64(position)
	p.target = p.pos
	p.last = p.now()
}

func (p *SimPlanner) CurrentPosition() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return int32(p.pos)
}

func (p *SimPlanner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.pos != p.target
}

func (p *SimPlanner) IsMotorRunning() bool {
	return p.IsRunning()
}

func (p *SimPlanner) EnableOutputs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

func (p *SimPlanner) SetAutoEnable(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoEnable = on
}

func (p *SimPlanner) SetDirectionInverted(inverted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inverted = inverted
}

// Target returns the commanded position, for tests and bench reporting.
func (p *SimPlanner) Target() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int32(p.target)
}
