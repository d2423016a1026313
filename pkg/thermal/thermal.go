// Driver thermal guard.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package thermal throttles the stepper driver current when the
// controller runs hot. This is a deliberately simple threshold crossing,
// not a PID loop: above the threshold the current scaler drops one count
// per degree, and the nominal scaler is restored once the temperature is
// back at or under the threshold.
package thermal

import (
	"smartspin-go/pkg/log"
)

// ThrottleTemp is the throttle threshold in degrees Celsius.
const ThrottleTemp = 72

// TemperatureReader reads the device temperature in degrees Celsius.
type TemperatureReader interface {
	Temperature() (float64, error)
}

// CurrentScaler applies a driver current scaler (IRUN, 0-31).
type CurrentScaler interface {
	SetRunScaler(scaler uint8) error
}

// Guard holds the hysteresis-free over-temperature state.
type Guard struct {
	reader  TemperatureReader
	driver  CurrentScaler
	nominal uint8 // board's nominal current scaler
	logger  *log.Logger

	overTemp bool
}

// NewGuard returns a thermal guard restoring nominal when cool.
func NewGuard(reader TemperatureReader, driver CurrentScaler, nominal uint8, logger *log.Logger) *Guard {
	return &Guard{
		reader:  reader,
		driver:  driver,
		nominal: nominal,
		logger:  logger,
	}
}

// Check reads the temperature once and applies the throttle policy.
// Called from the supervisor's slow cadence; not safe for concurrent use.
func (g *Guard) Check() {
	temp, err := g.reader.Temperature()
	if err != nil {
		g.logger.Warnf("Temperature read failed: %v", err)
		return
	}

	t := int(temp)
	if t > ThrottleTemp {
		throttled := (ThrottleTemp - t) + int(g.nominal)
		if throttled < 0 {
			throttled = 0
		}
		if err := g.driver.SetRunScaler(uint8(throttled)); err != nil {
			g.logger.Errorf("Throttle apply failed: %v", err)
			return
		}
		g.logger.Warnf("Over temp! Driver throttling down, %.1f C", temp)
		g.overTemp = true
		return
	}

	if g.overTemp {
		if err := g.driver.SetRunScaler(g.nominal); err != nil {
			g.logger.Errorf("Current restore failed: %v", err)
			return
		}
		g.logger.Infof("Temperature under control, driver current reset")
	}
	g.overTemp = false
}

// OverTemp reports whether the guard is currently throttling.
func (g *Guard) OverTemp() bool {
	return g.overTemp
}
