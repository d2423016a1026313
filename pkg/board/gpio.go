// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package board

import (
	"context"
	"fmt"
	"os"
	"time"
)

// gpioValuePath returns the sysfs value file for a pin. The pin must
// already be exported and configured by the platform setup.
func gpioValuePath(p Pin) string {
	return fmt.Sprintf("/sys/class/gpio/gpio%d/value", int(p))
}

// SysfsPin is one GPIO line accessed through the sysfs interface.
type SysfsPin struct {
	pin  Pin
	path string
}

// NewSysfsPin returns a pin handle; Available reports whether the line
// is actually exported on this system.
func NewSysfsPin(p Pin) *SysfsPin {
	return &SysfsPin{pin: p, path: gpioValuePath(p)}
}

// Available reports whether the sysfs line exists.
func (s *SysfsPin) Available() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Read returns the logic level of the line.
func (s *SysfsPin) Read() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("board: read gpio %d: %w", int(s.pin), err)
	}
	return len(data) > 0 && data[0] == '1', nil
}

// Write drives the line.
func (s *SysfsPin) Write(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	if err := os.WriteFile(s.path, v, 0644); err != nil {
		return fmt.Errorf("board: write gpio %d: %w", int(s.pin), err)
	}
	return nil
}

// ShifterPins implements the shift button reads for a profile. The
// buttons are wired active-low with pullups, matching the original
// board.
type ShifterPins struct {
	up   *SysfsPin
	down *SysfsPin
}

// NewShifterPins returns the button reader for a profile.
func NewShifterPins(p Profile) *ShifterPins {
	return &ShifterPins{
		up:   NewSysfsPin(p.ShiftUpPin),
		down: NewSysfsPin(p.ShiftDownPin),
	}
}

func (s *ShifterPins) ShiftUpPressed() bool {
	level, err := s.up.Read()
	if err != nil {
		return false
	}
	return !level // active low
}

func (s *ShifterPins) ShiftDownPressed() bool {
	level, err := s.down.Read()
	if err != nil {
		return false
	}
	return !level
}

// Available reports whether both button lines are exported.
func (s *ShifterPins) Available() bool {
	return s.up.Available() && s.down.Available()
}

// LED drives the front-panel status LED line.
type LED struct {
	pin *SysfsPin
}

// NewLED returns the LED for a profile.
func NewLED(p Profile) *LED {
	return &LED{pin: NewSysfsPin(p.LEDPin)}
}

func (l *LED) Set(on bool) {
	_ = l.pin.Write(on)
}

// Available reports whether the LED line is exported.
func (l *LED) Available() bool {
	return l.pin.Available()
}

// edgePollInterval is the button sampling period. Well under the
// debounce window, so no press can slip between samples.
const edgePollInterval = 10 * time.Millisecond

// WatchEdges polls the shift buttons and invokes the handlers on each
// press edge, standing in for the firmware's pin-change interrupts.
// Blocks until ctx is cancelled; run it in its own goroutine.
func (s *ShifterPins) WatchEdges(ctx context.Context, onUp, onDown func()) {
	ticker := time.NewTicker(edgePollInterval)
	defer ticker.Stop()

	var upWas, downWas bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		up := s.ShiftUpPressed()
		if up && !upWas {
			onUp()
		}
		upWas = up

		down := s.ShiftDownPressed()
		if down && !downWas {
			onDown()
		}
		downWas = down
	}
}
