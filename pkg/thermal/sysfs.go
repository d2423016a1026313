// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package thermal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// SysfsReader reads the device temperature from a kernel thermal zone
// (millidegrees Celsius, e.g. /sys/class/thermal/thermal_zone0/temp).
type SysfsReader struct {
	path string
}

// NewSysfsReader returns a reader for the given thermal zone temp file.
func NewSysfsReader(path string) *SysfsReader {
	return &SysfsReader{path: path}
}

// Temperature reads the zone and converts to degrees Celsius.
func (r *SysfsReader) Temperature() (float64, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("thermal: read %s: %w", r.path, err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("thermal: parse %s: %w", r.path, err)
	}
	return float64(milli) / 1000.0, nil
}
