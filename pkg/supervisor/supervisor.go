// Maintenance supervisor loop.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package supervisor runs the periodic housekeeping task: shifter bounds
// reconciliation, telemetry flushing, the stuck-scan watchdog, the
// thermal guard, sensor reconnection, and auxiliary serial polling. One
// goroutine owns the loop; everything it touches is either atomic or
// owned exclusively by it.
//
// The positioning loop may consume an out-of-bounds shifter position for
// up to one tick before the reconcile here rejects it. Its own clamp
// bounds the motion in that window, so the staleness is bounded and
// harmless.
package supervisor

import (
	"context"
	"time"

	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/config"
	"smartspin-go/pkg/log"
	"smartspin-go/pkg/shifter"
	"smartspin-go/pkg/state"
)

const (
	// TickInterval is the supervisory cycle period.
	TickInterval = 200 * time.Millisecond

	// logFlushInterval paces telemetry flushes.
	logFlushInterval = 500 * time.Millisecond

	// scanWatchdogInterval paces the stuck-scan check; a scan still
	// running across two consecutive checks is force-stopped.
	scanWatchdogInterval = 6 * time.Second

	// slowCadence runs the gesture, thermal, and reconnect checks every
	// Nth tick.
	slowCadence = 5

	// ReconnectInterval is how many slow-cadence evaluations a sensor
	// must stay missing before a reconnect scan fires.
	ReconnectInterval = 3

	wifiSettleDelay = time.Second
)

// Flusher is the telemetry sink, flushed at the log cadence.
type Flusher interface {
	WriteLogs()
}

// Checker is the thermal guard invoked at the slow cadence.
type Checker interface {
	Check()
}

// Poller is the auxiliary serial framer invoked every tick.
type Poller interface {
	Poll()
}

// Driver applies configuration changes to the stepper driver.
type Driver interface {
	ApplyPower(milliamps int) error
	SetStealthChop(enable bool) error
}

// Network controls the wireless network stack around restarts. The
// stack itself lives outside the control core.
type Network interface {
	StopHTTP()
	StartHTTP()
	StopWifi()
	StartWifi()
}

// Config wires a supervisor loop. Thermal, Aux, and Network may be nil
// when the board or deployment lacks them.
type Config struct {
	Runtime  *state.Runtime
	Settings *config.Store
	Client   ble.Client
	Server   ble.Server
	Shifter  *shifter.Controller
	LED      shifter.StatusLED
	Flusher  Flusher
	Thermal  Checker
	Aux      Poller
	Driver   Driver
	Network  Network
	Restart  func()
	Logger   *log.Logger
}

// Loop is the supervisory task state.
type Loop struct {
	cfg Config

	lastShifterPosition int32
	tickCount           int
	lastLogFlush        time.Time
	lastScanCheck       time.Time
	scanningLastCheck   bool
	reconnectTries      int

	// Last settings values known to have reached their consumers.
	// A failed apply leaves the snapshot behind so it retries on the
	// next slow-cadence pass.
	appliedStealthChop bool
	appliedPower       uint16
	appliedMinStep     int32
	appliedMaxStep     int32

	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a supervisor loop ready to run.
func New(cfg Config) *Loop {
	if cfg.LED == nil {
		cfg.LED = shifter.NopLED{}
	}
	l := &Loop{
		cfg:   cfg,
		now:   time.Now,
		sleep: time.Sleep,
	}
	l.lastShifterPosition = cfg.Runtime.ShifterPosition()
	initial := cfg.Settings.Get()
	l.appliedStealthChop = initial.StealthChop
	l.appliedPower = initial.StepperPower
	l.appliedMinStep = initial.MinStep
	l.appliedMaxStep = initial.MaxStep
	now := l.now()
	l.lastLogFlush = now
	l.lastScanCheck = now
	return l
}

// Run executes the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one supervisory cycle.
func (l *Loop) Tick() {
	l.tickCount++

	l.reconcileShifter()

	now := l.now()
	if now.Sub(l.lastLogFlush) >= logFlushInterval {
		l.cfg.Flusher.WriteLogs()
		l.lastLogFlush = now
	}
	if now.Sub(l.lastScanCheck) >= scanWatchdogInterval {
		l.checkStuckScan()
		l.lastScanCheck = now
	}

	if l.tickCount%slowCadence == 0 {
		l.cfg.Shifter.ScanIfShiftersHeld(l.cfg.Client, l.cfg.LED)
		if l.cfg.Thermal != nil {
			l.cfg.Thermal.Check()
		}
		l.applySettings()
		l.checkReconnect()
	}

	if l.cfg.Aux != nil {
		l.cfg.Aux.Poll()
	}
}

// reconcileShifter rejects shifter movements whose resulting target
// would leave the travel bounds, then notifies peers of the (possibly
// corrected) position. The snapshot always advances, so a rejected
// shift is not re-reported forever.
func (l *Loop) reconcileShifter() {
	rt := l.cfg.Runtime
	pos := rt.ShifterPosition()
	if pos == l.lastShifterPosition {
		return
	}

	wouldBe := pos * l.cfg.Settings.ShiftStep()
	wouldBe += int32(float64(rt.TargetIncline()) * l.cfg.Settings.InclineMultiplier())

	switch {
	case pos > l.lastShifterPosition && wouldBe > rt.MaxStep():
		rt.SetShifterPosition(l.lastShifterPosition)
		l.cfg.Logger.Infof("Shift Blocked By MaxStep")
	case pos < l.lastShifterPosition && wouldBe < rt.MinStep():
		rt.SetShifterPosition(l.lastShifterPosition)
		l.cfg.Logger.Infof("Shift Blocked By MinStep")
	default:
		l.cfg.Logger.Infof("Shift: %d", pos)
	}

	l.cfg.Server.NotifyShift()
	l.lastShifterPosition = rt.ShifterPosition()
}

// checkStuckScan force-stops a scan seen running on two consecutive
// watchdog checks.
func (l *Loop) checkStuckScan() {
	scanning := l.cfg.Client.IsScanning()
	if scanning && l.scanningLastCheck {
		l.cfg.Logger.Warnf("Scan appears stuck, stopping it")
		l.cfg.Client.StopScan()
		scanning = false
	}
	l.scanningLastCheck = scanning
}

// applySettings pushes changed settings to their consumers: chopper mode
// and run current to the stepper driver, travel bounds to the runtime
// state. Settings can change at any time through the config store, so
// the loop re-checks them at the slow cadence instead of only at boot.
func (l *Loop) applySettings() {
	s := l.cfg.Settings.Get()

	if l.cfg.Driver != nil {
		if s.StealthChop != l.appliedStealthChop {
			if err := l.cfg.Driver.SetStealthChop(s.StealthChop); err != nil {
				l.cfg.Logger.Errorf("Chopper mode change failed: %v", err)
			} else {
				l.cfg.Logger.Infof("Stealthchop set to %v", s.StealthChop)
				l.appliedStealthChop = s.StealthChop
			}
		}
		if s.StepperPower != l.appliedPower {
			if err := l.cfg.Driver.ApplyPower(int(s.StepperPower)); err != nil {
				l.cfg.Logger.Errorf("Stepper power change failed: %v", err)
			} else {
				l.cfg.Logger.Infof("Stepper power set to %d mA", s.StepperPower)
				l.appliedPower = s.StepperPower
			}
		}
	}

	if s.MinStep != l.appliedMinStep || s.MaxStep != l.appliedMaxStep {
		l.cfg.Runtime.SetSteps(s.MinStep, s.MaxStep)
		l.cfg.Logger.Infof("Travel bounds set to [%d, %d]", s.MinStep, s.MaxStep)
		l.appliedMinStep = s.MinStep
		l.appliedMaxStep = s.MaxStep
	}
}

// checkReconnect rescans when a configured sensor role has been missing
// for ReconnectInterval consecutive slow-cadence checks. A role set to
// "none" never counts as missing.
func (l *Loop) checkReconnect() {
	needHR := l.cfg.Settings.ConnectedHeartMonitor() != config.PeerNone && !l.cfg.Client.ConnectedHR()
	needPM := l.cfg.Settings.ConnectedPowerMeter() != config.PeerNone && !l.cfg.Client.ConnectedPM()

	if !needHR && !needPM {
		l.reconnectTries = 0
		return
	}

	l.reconnectTries++
	if l.reconnectTries < ReconnectInterval {
		return
	}
	l.reconnectTries = 0

	l.cfg.Logger.Infof("Scanning to reconnect sensors")
	l.cfg.Client.ResetDevices()
	l.cfg.Client.ServerScan(true)
}

// Restart flushes telemetry and requests a full process restart.
// Relaunch-as-recovery: there is no graceful teardown path.
func (l *Loop) Restart() {
	l.cfg.Logger.Warnf("Restart requested")
	l.cfg.Flusher.WriteLogs()
	if l.cfg.Restart != nil {
		l.cfg.Restart()
	}
}

// RestartWifi bounces the network stack, keeping the HTTP surface down
// while the radio reassociates.
func (l *Loop) RestartWifi() {
	if l.cfg.Network == nil {
		l.cfg.Logger.Warnf("Wifi restart requested but no network attached")
		return
	}
	l.cfg.Logger.Infof("Restarting wireless network")
	l.cfg.Network.StopHTTP()
	l.cfg.Network.StopWifi()
	l.sleep(wifiSettleDelay)
	l.cfg.Network.StartWifi()
	l.sleep(wifiSettleDelay)
	l.cfg.Network.StartHTTP()
}
