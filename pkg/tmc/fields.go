// TMC stepper driver register field support.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package tmc drives the Trinamic TMC2208 stepper driver over its
// single-wire UART: register field bookkeeping, RMS current scaling,
// datagram framing, and the bring-up sequence the controller needs.
package tmc

import (
	"fmt"
	"sort"
	"strings"
)

// ffs returns the position of the first bit set in a mask.
func ffs(mask uint32) int {
	if mask == 0 {
		return 0
	}
	pos := 0
	for (mask & 1) == 0 {
		mask >>= 1
		pos++
	}
	return pos
}

// bitLength returns the number of bits needed to represent a value.
func bitLength(v uint32) int {
	bits := 0
	for v > 0 {
		bits++
		v >>= 1
	}
	return bits
}

// FieldHelper handles TMC register field manipulation and caches the
// last written value of each register.
type FieldHelper struct {
	AllFields       map[string]map[string]uint32 // register -> field -> mask
	SignedFields    map[string]bool
	Registers       map[string]uint32
	FieldToRegister map[string]string
}

// NewFieldHelper creates a field helper over a register field map.
func NewFieldHelper(allFields map[string]map[string]uint32, signedFields []string) *FieldHelper {
	fh := &FieldHelper{
		AllFields:       allFields,
		SignedFields:    make(map[string]bool),
		Registers:       make(map[string]uint32),
		FieldToRegister: make(map[string]string),
	}
	for _, sf := range signedFields {
		fh.SignedFields[sf] = true
	}
	for regName, fields := range allFields {
		for fieldName := range fields {
			fh.FieldToRegister[fieldName] = regName
		}
	}
	return fh
}

// GetField returns the value of a register field. With a nil regValue
// the cached register value is used.
func (fh *FieldHelper) GetField(fieldName string, regValue *uint32, regName string) int32 {
	if regName == "" {
		regName = fh.FieldToRegister[fieldName]
	}

	var val uint32
	if regValue != nil {
		val = *regValue
	} else {
		val = fh.Registers[regName]
	}

	mask := fh.AllFields[regName][fieldName]
	shift := ffs(mask)
	fieldValue := int32((val & mask) >> shift)

	if fh.SignedFields[fieldName] {
		if ((val & mask) << 1) > mask {
			bits := bitLength(uint32(fieldValue))
			fieldValue -= (1 << bits)
		}
	}

	return fieldValue
}

// SetField sets a field, updates the cache, and returns the new
// register value.
func (fh *FieldHelper) SetField(fieldName string, fieldValue int32, regValue *uint32, regName string) uint32 {
	if regName == "" {
		regName = fh.FieldToRegister[fieldName]
	}

	var val uint32
	if regValue != nil {
		val = *regValue
	} else {
		val = fh.Registers[regName]
	}

	mask := fh.AllFields[regName][fieldName]
	shift := ffs(mask)
	newValue := (val & ^mask) | ((uint32(fieldValue) << shift) & mask)
	fh.Registers[regName] = newValue
	return newValue
}

// PrettyFormat returns a string description of a register for log
// output; zero-valued fields are omitted.
func (fh *FieldHelper) PrettyFormat(regName string, regValue uint32) string {
	regFields, ok := fh.AllFields[regName]
	if !ok {
		return fmt.Sprintf("%s: %08x", regName, regValue)
	}

	type maskField struct {
		mask uint32
		name string
	}
	fields := make([]maskField, 0, len(regFields))
	for name, mask := range regFields {
		fields = append(fields, maskField{mask, name})
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].mask < fields[j].mask
	})

	var parts []string
	for _, f := range fields {
		v := fh.GetField(f.name, &regValue, regName)
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", f.name, v))
		}
	}

	return fmt.Sprintf("%-11s %08x %s", regName+":", regValue, strings.Join(parts, " "))
}

// CurrentCalculator converts between RMS motor current in milliamps
// and the driver's 5-bit current scale, accounting for the internal
// 20 milliohm offset on the sense path.
type CurrentCalculator struct {
	SenseResistor float64
}

// NewCurrentCalculator creates a calculator for a sense resistor value
// in ohms.
func NewCurrentCalculator(senseResistor float64) *CurrentCalculator {
	return &CurrentCalculator{SenseResistor: senseResistor}
}

const sqrt2 = 1.41421356237

// CalcCurrentBits returns the CS value for an RMS current and whether
// the high-sensitivity range (vsense=1) must be selected. Currents
// that would need CS below 16 move to the high-sensitivity range for
// resolution; the result is clamped to 0..31.
func (cc *CurrentCalculator) CalcCurrentBits(milliamps int) (int, bool) {
	rms := float64(milliamps) / 1000.0
	rs := cc.SenseResistor + 0.02

	cs := int(32*sqrt2*rms*rs/0.325 - 1)
	vsense := false
	if cs < 16 {
		vsense = true
		cs = int(32*sqrt2*rms*rs/0.180 - 1)
	}
	if cs < 0 {
		cs = 0
	}
	if cs > 31 {
		cs = 31
	}
	return cs, vsense
}

// CalcCurrentFromBits returns the RMS current in milliamps for a CS
// value and sense range.
func (cc *CurrentCalculator) CalcCurrentFromBits(cs int, vsense bool) int {
	vfs := 0.325
	if vsense {
		vfs = 0.180
	}
	rs := cc.SenseResistor + 0.02
	return int(float64(cs+1) * vfs / (32 * sqrt2 * rs) * 1000)
}

// Status holds decoded DRV_STATUS driver state.
type Status struct {
	CSActual        int
	DriverError     bool
	OverTemp        bool
	OverTempPreWarn bool
	ShortToGndA     bool
	ShortToGndB     bool
	OpenLoadA       bool
	OpenLoadB       bool
	StandStill      bool
	StealthChop     bool
}

// ParseDRVStatus decodes a DRV_STATUS register value.
func ParseDRVStatus(value uint32, fields *FieldHelper) *Status {
	drv := fields.AllFields["DRV_STATUS"]
	s := &Status{
		CSActual:        int((value & drv["cs_actual"]) >> ffs(drv["cs_actual"])),
		OverTemp:        value&drv["ot"] != 0,
		OverTempPreWarn: value&drv["otpw"] != 0,
		ShortToGndA:     value&drv["s2ga"] != 0,
		ShortToGndB:     value&drv["s2gb"] != 0,
		OpenLoadA:       value&drv["ola"] != 0,
		OpenLoadB:       value&drv["olb"] != 0,
		StandStill:      value&drv["stst"] != 0,
		StealthChop:     value&drv["stealth"] != 0,
	}
	s.DriverError = s.OverTemp || s.ShortToGndA || s.ShortToGndB
	return s
}

// MicrostepTable maps microstep setting to MRES value.
var MicrostepTable = map[int]int{
	256: 0,
	128: 1,
	64:  2,
	32:  3,
	16:  4,
	8:   5,
	4:   6,
	2:   7,
	1:   8,
}

// GetMRES returns the MRES value for a microstep setting.
func GetMRES(microsteps int) (int, error) {
	mres, ok := MicrostepTable[microsteps]
	if !ok {
		return 0, fmt.Errorf("invalid microsteps %d", microsteps)
	}
	return mres, nil
}

// GetMicrostepsFromMRES returns microsteps from an MRES value.
func GetMicrostepsFromMRES(mres int) int {
	for ms, m := range MicrostepTable {
		if m == mres {
			return ms
		}
	}
	return 16
}
