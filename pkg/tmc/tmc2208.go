// TMC2208 stepper driver.
//
// Copyright (C) 2026  SmartSpin Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package tmc

import (
	"fmt"
	"io"
	"sort"

	"smartspin-go/pkg/log"
)

// TMC2208Fields defines the register fields for the TMC2208.
var TMC2208Fields = map[string]map[string]uint32{
	"GCONF": {
		"i_scale_analog":   1 << 0,
		"internal_rsense":  1 << 1,
		"en_spreadcycle":   1 << 2,
		"shaft":            1 << 3,
		"index_otpw":       1 << 4,
		"index_step":       1 << 5,
		"pdn_disable":      1 << 6,
		"mstep_reg_select": 1 << 7,
		"multistep_filt":   1 << 8,
		"test_mode":        1 << 9,
	},
	"GSTAT": {
		"reset":   1 << 0,
		"drv_err": 1 << 1,
		"uv_cp":   1 << 2,
	},
	"IFCNT": {
		"ifcnt": 0xff,
	},
	"SLAVECONF": {
		"senddelay": 0x0f << 8,
	},
	"IOIN": {
		"enn":      1 << 0,
		"ms1":      1 << 2,
		"ms2":      1 << 3,
		"diag":     1 << 4,
		"pdn_uart": 1 << 6,
		"step":     1 << 7,
		"sel_a":    1 << 8,
		"dir":      1 << 9,
		"version":  0xff << 24,
	},
	"FACTORY_CONF": {
		"fclktrim": 0x1f << 0,
		"ottrim":   0x03 << 8,
	},
	"IHOLD_IRUN": {
		"ihold":      0x1f << 0,
		"irun":       0x1f << 8,
		"iholddelay": 0x0f << 16,
	},
	"TPOWERDOWN": {
		"tpowerdown": 0xff,
	},
	"TSTEP": {
		"tstep": 0xfffff,
	},
	"TPWMTHRS": {
		"tpwmthrs": 0xfffff,
	},
	"VACTUAL": {
		"vactual": 0xffffff,
	},
	"MSCNT": {
		"mscnt": 0x3ff,
	},
	"MSCURACT": {
		"cur_a": 0x1ff << 0,
		"cur_b": 0x1ff << 16,
	},
	"CHOPCONF": {
		"toff":    0x0f << 0,
		"hstrt":   0x07 << 4,
		"hend":    0x0f << 7,
		"tbl":     0x03 << 15,
		"vsense":  1 << 17,
		"mres":    0x0f << 24,
		"intpol":  1 << 28,
		"dedge":   1 << 29,
		"diss2g":  1 << 30,
		"diss2vs": 1 << 31,
	},
	"DRV_STATUS": {
		"otpw":      1 << 0,
		"ot":        1 << 1,
		"s2ga":      1 << 2,
		"s2gb":      1 << 3,
		"s2vsa":     1 << 4,
		"s2vsb":     1 << 5,
		"ola":       1 << 6,
		"olb":       1 << 7,
		"t120":      1 << 8,
		"t143":      1 << 9,
		"t150":      1 << 10,
		"t157":      1 << 11,
		"cs_actual": 0x1f << 16,
		"stealth":   1 << 30,
		"stst":      1 << 31,
	},
	"PWMCONF": {
		"pwm_ofs":       0xff << 0,
		"pwm_grad":      0xff << 8,
		"pwm_freq":      0x03 << 16,
		"pwm_autoscale": 1 << 18,
		"pwm_autograd":  1 << 19,
		"freewheel":     0x03 << 20,
		"pwm_reg":       0x0f << 24,
		"pwm_lim":       0x0f << 28,
	},
	"PWM_SCALE": {
		"pwm_scale_sum":  0xff << 0,
		"pwm_scale_auto": 0x1ff << 16,
	},
	"PWM_AUTO": {
		"pwm_ofs_auto":  0xff << 0,
		"pwm_grad_auto": 0xff << 16,
	},
}

// TMC2208SignedFields lists fields that are signed.
var TMC2208SignedFields = []string{"cur_a", "cur_b", "pwm_scale_auto"}

// TMC2208 register addresses.
const (
	regGCONF        = 0x00
	regGSTAT        = 0x01
	regIFCNT        = 0x02
	regSLAVECONF    = 0x03
	regIOIN         = 0x06
	regFACTORY_CONF = 0x07
	regIHOLD_IRUN   = 0x10
	regTPOWERDOWN   = 0x11
	regTSTEP        = 0x12
	regTPWMTHRS     = 0x13
	regVACTUAL      = 0x22
	regMSCNT        = 0x6A
	regMSCURACT     = 0x6B
	regCHOPCONF     = 0x6C
	regDRV_STATUS   = 0x6F
	regPWMCONF      = 0x70
	regPWM_SCALE    = 0x71
	regPWM_AUTO     = 0x72
)

// TMC2208RegAddrs maps register names to addresses.
var TMC2208RegAddrs = map[string]uint8{
	"GCONF":        regGCONF,
	"GSTAT":        regGSTAT,
	"IFCNT":        regIFCNT,
	"SLAVECONF":    regSLAVECONF,
	"IOIN":         regIOIN,
	"FACTORY_CONF": regFACTORY_CONF,
	"IHOLD_IRUN":   regIHOLD_IRUN,
	"TPOWERDOWN":   regTPOWERDOWN,
	"TSTEP":        regTSTEP,
	"TPWMTHRS":     regTPWMTHRS,
	"VACTUAL":      regVACTUAL,
	"MSCNT":        regMSCNT,
	"MSCURACT":     regMSCURACT,
	"CHOPCONF":     regCHOPCONF,
	"DRV_STATUS":   regDRV_STATUS,
	"PWMCONF":      regPWMCONF,
	"PWM_SCALE":    regPWM_SCALE,
	"PWM_AUTO":     regPWM_AUTO,
}

// Config2208 holds driver configuration.
type Config2208 struct {
	SenseResistor  float64
	Microsteps     int
	RunPowerMA     int
	HoldMultiplier float64
	StealthChop    bool
}

// DefaultConfig2208 returns driver defaults matching the controller
// board.
func DefaultConfig2208() *Config2208 {
	return &Config2208{
		SenseResistor:  0.110,
		Microsteps:     4,
		RunPowerMA:     900,
		HoldMultiplier: 0.5,
		StealthChop:    true,
	}
}

// TMC2208 represents one TMC2208 on the UART bus.
type TMC2208 struct {
	Name        string
	Fields      *FieldHelper
	CurrentCalc *CurrentCalculator
	Config      *Config2208

	bus    *uartBus
	logger *log.Logger
}

// New2208 creates a driver speaking to slave address 0 on rw.
func New2208(name string, config *Config2208, rw io.ReadWriter, logger *log.Logger) *TMC2208 {
	if config == nil {
		config = DefaultConfig2208()
	}
	return &TMC2208{
		Name:        name,
		Fields:      NewFieldHelper(TMC2208Fields, TMC2208SignedFields),
		CurrentCalc: NewCurrentCalculator(config.SenseResistor),
		Config:      config,
		bus:         newUARTBus(rw, 0),
		logger:      logger,
	}
}

// GetRegister reads a register from the driver.
func (t *TMC2208) GetRegister(regName string) (uint32, error) {
	addr, ok := TMC2208RegAddrs[regName]
	if !ok {
		return 0, fmt.Errorf("unknown register %s", regName)
	}
	return t.bus.ReadRegister(addr)
}

// SetRegister writes a register and updates the cached value.
func (t *TMC2208) SetRegister(regName string, value uint32) error {
	addr, ok := TMC2208RegAddrs[regName]
	if !ok {
		return fmt.Errorf("unknown register %s", regName)
	}
	t.Fields.Registers[regName] = value
	return t.bus.WriteRegister(addr, value)
}

// TestConnection verifies the driver answers on the bus by reading the
// IOIN version field.
func (t *TMC2208) TestConnection() error {
	ioin, err := t.GetRegister("IOIN")
	if err != nil {
		return fmt.Errorf("driver not responding: %w", err)
	}
	version := t.Fields.GetField("version", &ioin, "IOIN")
	if version == 0 || version == 0xFF {
		return fmt.Errorf("driver not responding: IOIN version %#02x", version)
	}
	t.logger.Infof("TMC2208 detected, version %#02x", version)
	return nil
}

// Initialize performs the bring-up sequence: UART register control,
// chopper and microstep configuration, run current, and the configured
// chopper mode.
func (t *TMC2208) Initialize() error {
	gconf := t.Fields.SetField("pdn_disable", 1, nil, "GCONF")
	gconf = t.Fields.SetField("mstep_reg_select", 1, &gconf, "GCONF")
	gconf = t.Fields.SetField("multistep_filt", 1, &gconf, "GCONF")
	if !t.Config.StealthChop {
		gconf = t.Fields.SetField("en_spreadcycle", 1, &gconf, "GCONF")
	}
	if err := t.SetRegister("GCONF", gconf); err != nil {
		return err
	}

	chopconf := t.Fields.SetField("toff", 5, nil, "CHOPCONF")
	chopconf = t.Fields.SetField("hstrt", 4, &chopconf, "CHOPCONF")
	chopconf = t.Fields.SetField("hend", 0, &chopconf, "CHOPCONF")
	chopconf = t.Fields.SetField("tbl", 2, &chopconf, "CHOPCONF")
	chopconf = t.Fields.SetField("intpol", 1, &chopconf, "CHOPCONF")
	mres, err := GetMRES(t.Config.Microsteps)
	if err != nil {
		return err
	}
	chopconf = t.Fields.SetField("mres", int32(mres), &chopconf, "CHOPCONF")
	if err := t.SetRegister("CHOPCONF", chopconf); err != nil {
		return err
	}

	if err := t.ApplyPower(t.Config.RunPowerMA); err != nil {
		return err
	}

	pwmconf := t.Fields.SetField("pwm_autoscale", 1, nil, "PWMCONF")
	pwmconf = t.Fields.SetField("pwm_autograd", 1, &pwmconf, "PWMCONF")
	pwmconf = t.Fields.SetField("pwm_freq", 1, &pwmconf, "PWMCONF")
	if err := t.SetRegister("PWMCONF", pwmconf); err != nil {
		return err
	}

	tpowerdown := t.Fields.SetField("tpowerdown", 128, nil, "TPOWERDOWN")
	return t.SetRegister("TPOWERDOWN", tpowerdown)
}

// ApplyPower sets the RMS run current in milliamps, with the hold
// current derived from the configured multiplier, then logs the
// driver's actual current scale readback.
func (t *TMC2208) ApplyPower(milliamps int) error {
	cs, vsense := t.CurrentCalc.CalcCurrentBits(milliamps)
	ihold := int(float64(cs) * t.Config.HoldMultiplier)
	if ihold < 0 {
		ihold = 0
	}

	var vsenseVal int32
	if vsense {
		vsenseVal = 1
	}
	chopconf := t.Fields.SetField("vsense", vsenseVal, nil, "CHOPCONF")
	if err := t.SetRegister("CHOPCONF", chopconf); err != nil {
		return err
	}

	t.Fields.SetField("irun", int32(cs), nil, "IHOLD_IRUN")
	t.Fields.SetField("ihold", int32(ihold), nil, "IHOLD_IRUN")
	val := t.Fields.SetField("iholddelay", 10, nil, "IHOLD_IRUN")
	if err := t.SetRegister("IHOLD_IRUN", val); err != nil {
		return err
	}

	if status, err := t.GetStatus(); err == nil {
		actual := t.CurrentCalc.CalcCurrentFromBits(status.CSActual, vsense)
		t.logger.Infof("Stepper power %d mA (cs=%d cs_actual=%d ~%d mA)", milliamps, cs, status.CSActual, actual)
	} else {
		t.logger.Debugf("Stepper power %d mA (cs=%d), readback failed: %v", milliamps, cs, err)
	}
	return nil
}

// SetRunScaler writes the raw 5-bit run current scale, leaving hold
// current and delay untouched. Used for thermal throttling.
func (t *TMC2208) SetRunScaler(scaler uint8) error {
	if scaler > 31 {
		scaler = 31
	}
	val := t.Fields.SetField("irun", int32(scaler), nil, "IHOLD_IRUN")
	return t.SetRegister("IHOLD_IRUN", val)
}

// RunScaler returns the last applied run current scale.
func (t *TMC2208) RunScaler() uint8 {
	return uint8(t.Fields.GetField("irun", nil, "IHOLD_IRUN"))
}

// SetStealthChop selects quiet (true) or spreadCycle (false) chopper
// mode.
func (t *TMC2208) SetStealthChop(enable bool) error {
	var val int32
	if !enable {
		val = 1
	}
	gconf := t.Fields.SetField("en_spreadcycle", val, nil, "GCONF")
	return t.SetRegister("GCONF", gconf)
}

// GetStatus reads and decodes DRV_STATUS.
func (t *TMC2208) GetStatus() (*Status, error) {
	val, err := t.GetRegister("DRV_STATUS")
	if err != nil {
		return nil, err
	}
	return ParseDRVStatus(val, t.Fields), nil
}

// DumpRegisters logs every readable register, pretty-printed. Used on
// demand for diagnostics.
func (t *TMC2208) DumpRegisters() {
	names := make([]string, 0, len(TMC2208RegAddrs))
	for name := range TMC2208RegAddrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val, err := t.GetRegister(name)
		if err != nil {
			t.logger.Debugf("%s: read failed: %v", name, err)
			continue
		}
		t.logger.Infof("%s", t.Fields.PrettyFormat(name, val))
		if name == "CHOPCONF" {
			mres := int(t.Fields.GetField("mres", &val, "CHOPCONF"))
			t.logger.Infof("CHOPCONF: %d microsteps", GetMicrostepsFromMRES(mres))
		}
	}
}
