// Package board holds the per-revision hardware profiles for the
// resistance controller and the boot-time revision probe.
//
// A profile is selected exactly once at startup by comparing the measured
// reference voltage against the candidate revisions; it is read-only for
// the rest of the process lifetime.
package board

// Pin identifies a GPIO pin number on the controller board.
type Pin int

// NoPin marks an unpopulated pin (e.g. boards without an aux serial header).
const NoPin Pin = -1

// Profile is the immutable pin/calibration table for one board revision.
type Profile struct {
	Name string

	// VersionVoltage is the expected reading on the revision-detect pin,
	// in ADC counts.
	VersionVoltage int

	ShiftUpPin   Pin
	ShiftDownPin Pin
	LEDPin       Pin
	EnablePin    Pin
	DirPin       Pin
	StepPin      Pin

	// Stepper driver UART
	StepperSerialDevice string

	// Auxiliary bike serial port. Empty device means the revision has no
	// aux header.
	AuxSerialDevice string

	// PwrScaler is the nominal driver current scaler (IRUN, 0-31) for
	// this revision's stepper and wiring.
	PwrScaler uint8
}

// HasAuxSerial reports whether this revision carries the auxiliary bike
// serial header.
func (p *Profile) HasAuxSerial() bool {
	return p.AuxSerialDevice != ""
}

// Rev1 is the original through-hole board.
var Rev1 = Profile{
	Name:                "Revision One",
	VersionVoltage:      0,
	ShiftUpPin:          19,
	ShiftDownPin:        18,
	LEDPin:              2,
	EnablePin:           5,
	DirPin:              33,
	StepPin:             32,
	StepperSerialDevice: "/dev/ttyS1",
	AuxSerialDevice:     "",
	PwrScaler:           20,
}

// Rev2 is the SMD board with the aux serial header and the larger driver.
var Rev2 = Profile{
	Name:                "Revision Two",
	VersionVoltage:      1650,
	ShiftUpPin:          19,
	ShiftDownPin:        18,
	LEDPin:              2,
	EnablePin:           27,
	DirPin:              33,
	StepPin:             32,
	StepperSerialDevice: "/dev/ttyS1",
	AuxSerialDevice:     "/dev/ttyS2",
	PwrScaler:           31,
}

// Detect returns the profile whose expected revision voltage is closest to
// the measured value. Ties go to the newer revision, matching the original
// firmware's probe.
func Detect(measured int) Profile {
	if measured-Rev1.VersionVoltage >= Rev2.VersionVoltage-measured {
		return Rev2
	}
	return Rev1
}
