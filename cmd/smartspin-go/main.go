// smartspin-go is the host-side firmware for the motorized resistance
// controller: it drives the actuator against shifter input, external
// incline/resistance targets, and the auxiliary bike's serial feed.
//
// Usage:
//
//	smartspin-go -config /var/lib/smartspin/config.yaml [options]
//
// Options:
//
//	-config string         Settings file path (created on first boot)
//	-sim                   Run without hardware (simulated planner, no serial)
//	-board-mv int          Measured revision-detect voltage, ADC counts
//	-stepper-serial string Stepper driver UART device (default: board profile)
//	-aux-serial string     Auxiliary bike serial device (default: board profile)
//	-thermal-zone string   Thermal zone temp file for the thermal guard
//	-udp-log string        UDP log mirror target (host:port)
//	-ws-log string         WebSocket log listen address (e.g. :8080)
//	-list-serial           List candidate serial devices and exit
//	-trace                 Enable debug tracing
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartspin-go/pkg/ble"
	"smartspin-go/pkg/board"
	"smartspin-go/pkg/config"
	"smartspin-go/pkg/log"
	"smartspin-go/pkg/motion"
	"smartspin-go/pkg/peloton"
	"smartspin-go/pkg/serial"
	"smartspin-go/pkg/shifter"
	"smartspin-go/pkg/state"
	"smartspin-go/pkg/supervisor"
	"smartspin-go/pkg/thermal"
	"smartspin-go/pkg/tmc"
)

// restartExitCode tells the service wrapper to relaunch us. Restart is
// the recovery path for factory reset and fatal states.
const restartExitCode = 3

// nopPins is the shifter input in sim mode: nothing is ever pressed.
type nopPins struct{}

func (nopPins) ShiftUpPressed() bool   { return false }
func (nopPins) ShiftDownPressed() bool { return false }

// nopServer is the peripheral-role stand-in until a radio stack is
// attached.
type nopServer struct{ logger *log.Logger }

func (s *nopServer) NotifyShift() { s.logger.Debugf("Shift notify (no peers attached)") }

// logIntake logs aux sensor frames until a sensor-data factory is
// attached.
type logIntake struct{ logger *log.Logger }

func (i *logIntake) CollectAndSet(source string, payload []byte) {
	i.logger.Infof("Sensor frame from %s: % X", source, payload)
}

func main() {
	configFile := flag.String("config", "smartspin.yaml", "Settings file path")
	sim := flag.Bool("sim", false, "Run without hardware")
	boardMV := flag.Int("board-mv", board.Rev2.VersionVoltage, "Measured revision-detect voltage (ADC counts)")
	stepperSerial := flag.String("stepper-serial", "", "Stepper driver UART device (default: board profile)")
	auxSerial := flag.String("aux-serial", "", "Auxiliary bike serial device (default: board profile)")
	thermalZone := flag.String("thermal-zone", "/sys/class/thermal/thermal_zone0/temp", "Thermal zone temp file")
	udpLog := flag.String("udp-log", "", "UDP log mirror target (host:port)")
	wsLog := flag.String("ws-log", "", "WebSocket log listen address")
	listSerial := flag.Bool("list-serial", false, "List candidate serial devices and exit")
	trace := flag.Bool("trace", false, "Enable debug tracing")
	flag.Parse()

	if *listSerial {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing serial devices: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	handler := log.NewHandler(os.Stdout)
	if *trace {
		handler.SetLevel(log.DEBUG)
	}
	if *udpLog != "" {
		udp, err := log.NewUDPAppender(*udpLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error setting up UDP logging: %v\n", err)
			os.Exit(1)
		}
		handler.AddAppender(udp)
	}
	if *wsLog != "" {
		ws := log.NewWebSocketAppender()
		handler.AddAppender(ws)
		mux := http.NewServeMux()
		mux.HandleFunc("/logs", ws.Handler())
		go func() {
			if err := http.ListenAndServe(*wsLog, mux); err != nil {
				handler.New("main").Errorf("WebSocket log server: %v", err)
			}
		}()
	}
	logger := handler.New("main")

	logger.Infof("SmartSpin controller starting")

	profile := board.Detect(*boardMV)
	logger.Infof("Board: %s", profile.Name)

	store := config.NewStore(*configFile)
	if err := store.Load(); err != nil {
		logger.Errorf("Settings load failed, keeping defaults: %v", err)
	}
	if err := store.Save(); err != nil {
		logger.Errorf("Settings save failed: %v", err)
	}
	settings := store.Get()
	logger.Infof("Settings: shiftStep=%d inclineMultiplier=%.1f stepperPower=%dmA bounds=[%d,%d]",
		settings.ShiftStep, settings.InclineMultiplier, settings.StepperPower,
		settings.MinStep, settings.MaxStep)

	rt := state.New(settings.MinStep, settings.MaxStep)
	peers := ble.NewPeerState()
	server := &nopServer{logger: handler.New("ble")}

	restart := func() {
		handler.WriteLogs()
		os.Exit(restartExitCode)
	}

	// Shifter input: sysfs GPIO when the lines are exported, inert pins
	// otherwise.
	var pins shifter.Pins = nopPins{}
	var led shifter.StatusLED = shifter.NopLED{}
	var gpioPins *board.ShifterPins
	if !*sim {
		gp := board.NewShifterPins(profile)
		if gp.Available() {
			pins = gp
			gpioPins = gp
		} else {
			logger.Warnf("Shifter GPIO lines not exported, buttons disabled")
		}
		if l := board.NewLED(profile); l.Available() {
			led = l
		}
	}
	shift := shifter.New(rt, store, pins, handler.New("shifter"))

	// Boot-time factory reset gesture, before anything else runs.
	shift.ResetIfShiftersHeld(led, restart)

	// Stepper driver bring-up.
	var driver *tmc.TMC2208
	if !*sim {
		device := *stepperSerial
		if device == "" {
			device = profile.StepperSerialDevice
		}
		if resolved, err := serial.ResolveDevice(device); err != nil {
			logger.Errorf("Stepper UART %s: %v", device, err)
		} else {
			device = resolved
		}
		if serial.IsDeviceAvailable(device) {
			port, err := serial.Open(serial.Config{Device: device})
			if err != nil {
				logger.Errorf("Stepper UART open failed: %v", err)
			} else {
				// Register replies arrive within milliseconds; a shorter
				// timeout keeps a dead driver from stalling bring-up.
				port.SetReadTimeout(500 * time.Millisecond)
				if err := port.Flush(); err != nil {
					logger.Warnf("Stepper UART flush failed: %v", err)
				}
				dcfg := tmc.DefaultConfig2208()
				dcfg.RunPowerMA = int(settings.StepperPower)
				dcfg.StealthChop = settings.StealthChop
				driver = tmc.New2208("stepper", dcfg, port, handler.New("tmc"))
				if err := driver.TestConnection(); err != nil {
					logger.Errorf("Stepper driver: %v", err)
				}
				if err := driver.Initialize(); err != nil {
					logger.Errorf("Stepper driver bring-up failed: %v", err)
				} else if *trace {
					driver.DumpRegisters()
				}
			}
		} else {
			logger.Warnf("Stepper UART %s not available", device)
		}
	}

	// Thermal guard needs both a temperature source and a driver to
	// throttle.
	var guard supervisor.Checker
	if driver != nil && *thermalZone != "" {
		if _, err := os.Stat(*thermalZone); err == nil {
			guard = thermal.NewGuard(thermal.NewSysfsReader(*thermalZone), driver,
				profile.PwrScaler, handler.New("thermal"))
		} else {
			logger.Warnf("Thermal zone %s not available, thermal guard disabled", *thermalZone)
		}
	}

	// Auxiliary bike serial.
	var framer *peloton.Framer
	if !*sim {
		device := *auxSerial
		if device == "" {
			device = profile.AuxSerialDevice
		}
		if device != "" && serial.IsDeviceAvailable(device) {
			port, err := peloton.OpenPort(device)
			if err != nil {
				logger.Errorf("Aux serial open failed: %v", err)
			} else {
				framer = peloton.NewFramer(port, &logIntake{logger: handler.New("aux")},
					true, handler.New("aux"))
				logger.Infof("Aux serial attached on %s", device)
			}
		}
	}

	ctrl := motion.NewController(rt, store, peers, handler.New("motion"))
	ctrl.AttachPlanner(motion.NewSimPlanner())

	loop := supervisor.New(supervisor.Config{
		Runtime:  rt,
		Settings: store,
		Client:   peers,
		Server:   server,
		Shifter:  shift,
		LED:      led,
		Flusher:  handler,
		Thermal:  guard,
		Aux:      wrapFramer(framer),
		Driver:   wrapDriver(driver),
		Restart:  restart,
		Logger:   handler.New("supervisor"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if gpioPins != nil {
		go gpioPins.WatchEdges(ctx, shift.ShiftUp, shift.ShiftDown)
	}
	go ctrl.Run(ctx)
	go loop.Run(ctx)

	logger.Infof("Control loops running")
	<-ctx.Done()

	logger.Infof("Shutting down")
	handler.Close()
}

// wrapFramer keeps a nil *Framer from becoming a non-nil Poller
// interface.
func wrapFramer(f *peloton.Framer) supervisor.Poller {
	if f == nil {
		return nil
	}
	return f
}

// wrapDriver keeps a nil *TMC2208 from becoming a non-nil Driver
// interface.
func wrapDriver(d *tmc.TMC2208) supervisor.Driver {
	if d == nil {
		return nil
	}
	return d
}
