// User settings persistence for the resistance controller.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config stores the rider-tunable settings. Settings are persisted
// as YAML and held in a thread-safe live store; the control loops re-read
// them every cycle so edits made over the admin surface take effect
// without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Peer-name values with special meaning for the reconnect watchdog.
const (
	// PeerAny accepts whatever device the scan finds first.
	PeerAny = "any"
	// PeerNone disables the sensor role entirely.
	PeerNone = "none"
)

// Settings are the persisted user parameters. Field names match the YAML
// document on disk.
type Settings struct {
	// ShifterDir inverts which physical button shifts up.
	ShifterDir bool `yaml:"shifter_dir"`

	// ShiftStep is the actuator travel per shifter click, in steps.
	ShiftStep int32 `yaml:"shift_step"`

	// InclineMultiplier scales the externally commanded grade into steps.
	InclineMultiplier float64 `yaml:"incline_multiplier"`

	// StepperDir inverts the driver direction polarity for boards with
	// reversed motor wiring.
	StepperDir bool `yaml:"stepper_dir"`

	// StealthChop selects quiet (true) or spreadcycle (false) chopper
	// mode on the driver.
	StealthChop bool `yaml:"stealthchop"`

	// StepperPower is the driver RMS current in milliamps.
	StepperPower uint16 `yaml:"stepper_power"`

	// MinStep/MaxStep are the configured travel bounds, in steps.
	MinStep int32 `yaml:"min_step"`
	MaxStep int32 `yaml:"max_step"`

	ConnectedHeartMonitor string `yaml:"connected_heart_monitor"`
	ConnectedPowerMeter   string `yaml:"connected_power_meter"`
}

// Defaults returns the factory settings.
func Defaults() Settings {
	return Settings{
		ShifterDir:            false,
		ShiftStep:             400,
		InclineMultiplier:     3.0,
		StepperDir:            true,
		StealthChop:           true,
		StepperPower:          900,
		MinStep:               -1500,
		MaxStep:               1500,
		ConnectedHeartMonitor: PeerAny,
		ConnectedPowerMeter:   PeerAny,
	}
}

// Store is the live settings holder shared by the loops.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	path     string
}

// NewStore returns a Store backed by path, initialized with defaults.
func NewStore(path string) *Store {
	return &Store{settings: Defaults(), path: path}
}

// Load reads the settings file into the store. A missing file is not an
// error: the store keeps its defaults and the caller is expected to Save,
// matching the original's first-boot load/save cycle.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: unable to read %s: %w", s.path, err)
	}

	settings := Defaults()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("config: unable to parse %s: %w", s.path, err)
	}
	if err := validate(&settings); err != nil {
		return fmt.Errorf("config: %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Save writes the current settings atomically (temp file + rename).
func (s *Store) Save() error {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("config: unable to encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("config: unable to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: unable to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: unable to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: unable to replace %s: %w", s.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// SetDefaults resets the store to factory settings. It does not save.
func (s *Store) SetDefaults() {
	s.mu.Lock()
	s.settings = Defaults()
	s.mu.Unlock()
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings under the write lock. It does not save.
func (s *Store) Update(fn func(*Settings)) {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
}

// Per-field accessors used on the hot paths, so loop iterations do not
// copy the whole struct.

func (s *Store) ShifterDir() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ShifterDir
}

func (s *Store) ShiftStep() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ShiftStep
}

func (s *Store) InclineMultiplier() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.InclineMultiplier
}

func (s *Store) StepperDir() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.StepperDir
}

func (s *Store) StealthChop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.StealthChop
}

func (s *Store) StepperPower() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.StepperPower
}

func (s *Store) ConnectedHeartMonitor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ConnectedHeartMonitor
}

func (s *Store) ConnectedPowerMeter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ConnectedPowerMeter
}

func validate(s *Settings) error {
	if s.MinStep > s.MaxStep {
		return fmt.Errorf("min_step %d exceeds max_step %d", s.MinStep, s.MaxStep)
	}
	if s.ShiftStep <= 0 {
		return fmt.Errorf("shift_step must be positive, got %d", s.ShiftStep)
	}
	if s.InclineMultiplier < 0 {
		return fmt.Errorf("incline_multiplier must not be negative, got %v", s.InclineMultiplier)
	}
	return nil
}
