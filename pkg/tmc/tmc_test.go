// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package tmc

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"smartspin-go/pkg/log"
)

// fakeBus is an io.ReadWriter serving scripted receive bytes and
// recording transmitted datagrams.
type fakeBus struct {
	writes [][]byte
	rx     []byte
}

func (f *fakeBus) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeBus) Read(p []byte) (int, error) {
	if len(f.rx) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func TestCRC8(t *testing.T) {
	tests := []struct {
		data []byte
		want byte
	}{
		{[]byte{0x05, 0x00, 0x06}, 0x6F},
		{[]byte{0x05, 0x00, 0x00}, 0x48},
		{nil, 0x00},
	}
	for _, tc := range tests {
		if got := crc8(tc.data); got != tc.want {
			t.Errorf("crc8(% X) = %#02x, want %#02x", tc.data, got, tc.want)
		}
	}
}

func TestWriteDatagramLayout(t *testing.T) {
	d := writeDatagram(0, regIHOLD_IRUN, 0x000A1C0E)
	want := []byte{0x05, 0x00, 0x90, 0x00, 0x0A, 0x1C, 0x0E}
	if !bytes.Equal(d[:7], want) {
		t.Errorf("datagram = % X, want % X + crc", d[:7], want)
	}
	if d[7] != crc8(d[:7]) {
		t.Errorf("crc byte = %#02x, want %#02x", d[7], crc8(d[:7]))
	}
}

// replyDatagram builds a valid master-addressed reply for tests.
func replyDatagram(reg uint8, value uint32) []byte {
	d := []byte{
		syncByte, masterAddr, reg,
		byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value),
		0,
	}
	d[7] = crc8(d[:7])
	return d
}

func TestReadRegisterSkipsEcho(t *testing.T) {
	bus := &fakeBus{}
	// Single-wire bus: our own request echoes back before the reply.
	bus.rx = append(bus.rx, readRequestDatagram(0, regIOIN)...)
	bus.rx = append(bus.rx, replyDatagram(regIOIN, 0x21000041)...)

	u := newUARTBus(bus, 0)
	got, err := u.ReadRegister(regIOIN)
	if err != nil {
		t.Fatalf("ReadRegister() error: %v", err)
	}
	if got != 0x21000041 {
		t.Errorf("ReadRegister() = %#08x, want 0x21000041", got)
	}
	if len(bus.writes) != 1 || !bytes.Equal(bus.writes[0], readRequestDatagram(0, regIOIN)) {
		t.Errorf("request datagram = %v", bus.writes)
	}
}

func TestReadRegisterBadCRC(t *testing.T) {
	bus := &fakeBus{}
	d := replyDatagram(regDRV_STATUS, 0x1234)
	d[7] ^= 0xFF
	bus.rx = d

	u := newUARTBus(bus, 0)
	if _, err := u.ReadRegister(regDRV_STATUS); !errors.Is(err, ErrBadCRC) {
		t.Errorf("ReadRegister() error = %v, want ErrBadCRC", err)
	}
}

func TestReadRegisterNoReply(t *testing.T) {
	u := newUARTBus(&fakeBus{}, 0)
	if _, err := u.ReadRegister(regGCONF); err == nil {
		t.Error("ReadRegister() error = nil on silent bus")
	}
}

func TestCalcCurrentBits(t *testing.T) {
	cc := NewCurrentCalculator(0.110)
	tests := []struct {
		milliamps  int
		wantCS     int
		wantVSense bool
	}{
		{900, 28, true},
		{2000, 31, false},
		{0, 0, true},
	}
	for _, tc := range tests {
		cs, vsense := cc.CalcCurrentBits(tc.milliamps)
		if cs != tc.wantCS || vsense != tc.wantVSense {
			t.Errorf("CalcCurrentBits(%d) = (%d, %v), want (%d, %v)",
				tc.milliamps, cs, vsense, tc.wantCS, tc.wantVSense)
		}
	}
}

func TestFieldHelperSigned(t *testing.T) {
	fh := NewFieldHelper(TMC2208Fields, TMC2208SignedFields)
	reg := uint32(0x100) // cur_a = 0x100 in 9-bit two's complement
	if got := fh.GetField("cur_a", &reg, "MSCURACT"); got != -256 {
		t.Errorf("GetField(cur_a) = %d, want -256", got)
	}
	reg = 0x0FF
	if got := fh.GetField("cur_a", &reg, "MSCURACT"); got != 255 {
		t.Errorf("GetField(cur_a) = %d, want 255", got)
	}
}

func TestFieldHelperSetGetRoundTrip(t *testing.T) {
	fh := NewFieldHelper(TMC2208Fields, TMC2208SignedFields)
	val := fh.SetField("irun", 28, nil, "IHOLD_IRUN")
	val = fh.SetField("iholddelay", 10, &val, "IHOLD_IRUN")
	if got := fh.GetField("irun", nil, "IHOLD_IRUN"); got != 28 {
		t.Errorf("irun = %d, want 28", got)
	}
	if got := fh.GetField("iholddelay", nil, "IHOLD_IRUN"); got != 10 {
		t.Errorf("iholddelay = %d, want 10", got)
	}
}

func TestSetRunScaler(t *testing.T) {
	bus := &fakeBus{}
	d := New2208("stepper", nil, bus, log.Discard())

	if err := d.SetRunScaler(12); err != nil {
		t.Fatalf("SetRunScaler() error: %v", err)
	}
	if got := d.RunScaler(); got != 12 {
		t.Errorf("RunScaler() = %d, want 12", got)
	}
	last := bus.writes[len(bus.writes)-1]
	if last[2] != regIHOLD_IRUN|0x80 {
		t.Errorf("last write register = %#02x, want IHOLD_IRUN", last[2])
	}
	value := uint32(last[3])<<24 | uint32(last[4])<<16 | uint32(last[5])<<8 | uint32(last[6])
	if got := d.Fields.GetField("irun", &value, "IHOLD_IRUN"); got != 12 {
		t.Errorf("wire irun = %d, want 12", got)
	}

	// Out-of-range scalers clamp to the 5-bit field.
	if err := d.SetRunScaler(40); err != nil {
		t.Fatalf("SetRunScaler() error: %v", err)
	}
	if got := d.RunScaler(); got != 31 {
		t.Errorf("RunScaler() = %d, want 31 after clamp", got)
	}
}

func TestInitializeRegisterState(t *testing.T) {
	bus := &fakeBus{}
	d := New2208("stepper", nil, bus, log.Discard())

	// Status readback in ApplyPower fails on the silent fake; bring-up
	// must still complete.
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	checks := []struct {
		field string
		reg   string
		want  int32
	}{
		{"pdn_disable", "GCONF", 1},
		{"mstep_reg_select", "GCONF", 1},
		{"multistep_filt", "GCONF", 1},
		{"en_spreadcycle", "GCONF", 0},
		{"toff", "CHOPCONF", 5},
		{"mres", "CHOPCONF", 6}, // 4 microsteps
		{"vsense", "CHOPCONF", 1},
		{"irun", "IHOLD_IRUN", 28},
		{"ihold", "IHOLD_IRUN", 14},
		{"iholddelay", "IHOLD_IRUN", 10},
		{"tpowerdown", "TPOWERDOWN", 128},
		{"pwm_autoscale", "PWMCONF", 1},
	}
	for _, c := range checks {
		if got := d.Fields.GetField(c.field, nil, c.reg); got != c.want {
			t.Errorf("%s.%s = %d, want %d", c.reg, c.field, got, c.want)
		}
	}
}

func TestInitializeSpreadCycle(t *testing.T) {
	cfg := DefaultConfig2208()
	cfg.StealthChop = false
	d := New2208("stepper", cfg, &fakeBus{}, log.Discard())
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if got := d.Fields.GetField("en_spreadcycle", nil, "GCONF"); got != 1 {
		t.Errorf("en_spreadcycle = %d, want 1", got)
	}
}

func TestParseDRVStatus(t *testing.T) {
	fh := NewFieldHelper(TMC2208Fields, TMC2208SignedFields)
	// ot + s2ga + cs_actual=20 + stst
	value := uint32(1<<1 | 1<<2 | 20<<16 | 1<<31)
	s := ParseDRVStatus(value, fh)
	if !s.OverTemp || !s.ShortToGndA || !s.DriverError {
		t.Errorf("status flags = %+v, want ot/s2ga/error", s)
	}
	if s.CSActual != 20 {
		t.Errorf("CSActual = %d, want 20", s.CSActual)
	}
	if !s.StandStill || s.OpenLoadA {
		t.Errorf("status flags = %+v", s)
	}
}

func TestCalcCurrentFromBits(t *testing.T) {
	cc := NewCurrentCalculator(0.110)
	tests := []struct {
		cs     int
		vsense bool
		wantMA int
	}{
		{28, true, 887},
		{31, false, 1767},
		{0, true, 30},
	}
	for _, tc := range tests {
		if got := cc.CalcCurrentFromBits(tc.cs, tc.vsense); got != tc.wantMA {
			t.Errorf("CalcCurrentFromBits(%d, %v) = %d, want %d",
				tc.cs, tc.vsense, got, tc.wantMA)
		}
	}
}

func TestMicrostepsFromMRES(t *testing.T) {
	for microsteps, mres := range MicrostepTable {
		if got := GetMicrostepsFromMRES(mres); got != microsteps {
			t.Errorf("GetMicrostepsFromMRES(%d) = %d, want %d", mres, got, microsteps)
		}
	}
	// Unknown MRES falls back to the chip's power-on default.
	if got := GetMicrostepsFromMRES(99); got != 16 {
		t.Errorf("GetMicrostepsFromMRES(99) = %d, want 16", got)
	}
}

func TestDumpRegisters(t *testing.T) {
	bus := &fakeBus{}
	fh := NewFieldHelper(TMC2208Fields, TMC2208SignedFields)
	chopconf := fh.SetField("toff", 5, nil, "CHOPCONF")
	chopconf = fh.SetField("mres", 6, &chopconf, "CHOPCONF")
	// CHOPCONF sorts first; every later read fails and is only logged
	// at debug level.
	bus.rx = append(bus.rx, replyDatagram(regCHOPCONF, chopconf)...)

	var out bytes.Buffer
	h := log.NewHandler(&out)
	d := New2208("stepper", nil, bus, h.New("TMC"))
	d.DumpRegisters()

	if !bytes.Contains(out.Bytes(), []byte("CHOPCONF")) {
		t.Errorf("dump missing CHOPCONF line:\n%s", out.String())
	}
	if !bytes.Contains(out.Bytes(), []byte("4 microsteps")) {
		t.Errorf("dump missing microstep decode:\n%s", out.String())
	}
}
