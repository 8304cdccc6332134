package board

// Register is a named register of a satellite board.
type Register struct {
	Name string
	Addr byte
}

const (
	DefaultMoboAddr uint16 = 0x08
	PowerAddr       uint16 = 0x09
)

// Motherboard registers.
const (
	MoboVersion     byte = 0x00
	MoboBrightness  byte = 0x01
	MoboDisplay     byte = 0x02
	MoboPowerSwitch byte = 0x03
	MoboDAC         byte = 0x04
	MoboXLow        byte = 0x05
	MoboXHigh       byte = 0x06
	MoboYLow        byte = 0x07
	MoboYHigh       byte = 0x08
	MoboZLow        byte = 0x09
	MoboZHigh       byte = 0x0A
	MoboRegMax      byte = 0x0B
)

// Power board registers.
const (
	PowerVersion byte = 0x00
	PowerSwitch  byte = 0x01
	PowerX       byte = 0x02
	PowerY       byte = 0x03
	PowerVbus    byte = 0x04
	PowerVref    byte = 0x05
	PowerRegMax  byte = 0x06
)

var MoboRegisters = []Register{
	{"version", MoboVersion},
	{"brightness", MoboBrightness},
	{"display", MoboDisplay},
	{"power_switch", MoboPowerSwitch},
	{"dac", MoboDAC},
	{"x_low", MoboXLow},
	{"x_high", MoboXHigh},
	{"y_low", MoboYLow},
	{"y_high", MoboYHigh},
	{"z_low", MoboZLow},
	{"z_high", MoboZHigh},
}

var PowerRegisters = []Register{
	{"version", PowerVersion},
	{"switch", PowerSwitch},
	{"x", PowerX},
	{"y", PowerY},
	{"vbus", PowerVbus},
	{"vref", PowerVref},
}
