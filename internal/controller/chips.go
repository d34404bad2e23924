package controller

import "time"

const ms = time.Millisecond

var iliMadctl = [4]uint8{
	MadMX | MadBGR,                 // 0x48
	MadMV | MadBGR,                 // 0x28
	MadMY | MadBGR,                 // 0x88
	MadMX | MadMY | MadMV | MadBGR, // 0xE8
}

var ili9341 = chip{
	name:         "ILI9341",
	width:        240,
	height:       320,
	madctl:       iliMadctl,
	idReg:        CmdRDID4,
	idBytes:      3,
	id:           0x009341,
	readPerPixel: true,
	init: []step{
		{cmd: 0xEF, data: []byte{0x03, 0x80, 0x02}},
		{cmd: 0xCF, data: []byte{0x00, 0xC1, 0x30}},             // power control B
		{cmd: 0xED, data: []byte{0x64, 0x03, 0x12, 0x81}},       // power on sequence
		{cmd: 0xE8, data: []byte{0x85, 0x00, 0x78}},             // driver timing A
		{cmd: 0xCB, data: []byte{0x39, 0x2C, 0x00, 0x34, 0x02}}, // power control A
		{cmd: 0xF7, data: []byte{0x20}},                         // pump ratio
		{cmd: 0xEA, data: []byte{0x00, 0x00}},                   // driver timing B
		{cmd: 0xC0, data: []byte{0x23}},                         // PWCTR1
		{cmd: 0xC1, data: []byte{0x10}},                         // PWCTR2
		{cmd: 0xC5, data: []byte{0x3E, 0x28}},                   // VMCTR1
		{cmd: 0xC7, data: []byte{0x86}},                         // VMCTR2
		{cmd: CmdCOLMOD, data: []byte{0x55}},
		{cmd: 0xB1, data: []byte{0x00, 0x18}},       // frame rate 79Hz
		{cmd: 0xB6, data: []byte{0x08, 0x82, 0x27}}, // display function
		{cmd: 0xF2, data: []byte{0x00}},             // 3G off
		{cmd: 0x26, data: []byte{0x01}},             // gamma curve 1
		{cmd: 0xE0, data: []byte{0x0F, 0x31, 0x2B, 0x0C, 0x0E, 0x08, 0x4E, 0xF1, 0x37, 0x07, 0x10, 0x03, 0x0E, 0x09, 0x00}},
		{cmd: 0xE1, data: []byte{0x00, 0x0E, 0x14, 0x03, 0x11, 0x07, 0x31, 0xC1, 0x48, 0x08, 0x0F, 0x0C, 0x31, 0x36, 0x0F}},
		{cmd: CmdSLPOUT, delay: 120 * ms},
		{cmd: CmdDISPON, delay: 20 * ms},
	},
}

var ili9486 = chip{
	name:                 "ILI9486",
	width:                320,
	height:               480,
	madctl:               iliMadctl,
	idReg:                CmdRDID4,
	idBytes:              3,
	id:                   0x009486,
	rotationKeepsBusOpen: true,
	init: []step{
		{cmd: CmdSLPOUT, delay: 120 * ms},
		{cmd: CmdCOLMOD, data: []byte{0x55}},
		{cmd: 0xC0, data: []byte{0x0D, 0x0D}},       // power control 1
		{cmd: 0xC1, data: []byte{0x43, 0x00}},       // power control 2
		{cmd: 0xC2, data: []byte{0x00}},             // power control 3
		{cmd: 0xC5, data: []byte{0x00, 0x48}},       // VCOM
		{cmd: 0xB6, data: []byte{0x00, 0x22, 0x3B}}, // display function, 480 lines
		{cmd: 0xE0, data: []byte{0x0F, 0x24, 0x1C, 0x0A, 0x0F, 0x08, 0x43, 0x88, 0x32, 0x0F, 0x10, 0x06, 0x0F, 0x07, 0x00}},
		{cmd: 0xE1, data: []byte{0x0F, 0x38, 0x30, 0x09, 0x0F, 0x0F, 0x4E, 0x77, 0x3C, 0x07, 0x10, 0x05, 0x23, 0x1B, 0x00}},
		{cmd: CmdINVOFF},
		{cmd: CmdDISPON, delay: 20 * ms},
	},
}

var ili9488 = chip{
	name:     "ILI9488",
	width:    320,
	height:   480,
	madctl:   iliMadctl,
	idReg:    CmdRDID4,
	idBytes:  3,
	id:       0x009488,
	serial18: true,
	init: []step{
		{cmd: 0xE0, data: []byte{0x00, 0x03, 0x09, 0x08, 0x16, 0x0A, 0x3F, 0x78, 0x4C, 0x09, 0x0A, 0x08, 0x16, 0x1A, 0x0F}},
		{cmd: 0xE1, data: []byte{0x00, 0x16, 0x19, 0x03, 0x0F, 0x05, 0x32, 0x45, 0x46, 0x04, 0x0E, 0x0D, 0x35, 0x37, 0x0F}},
		{cmd: 0xC0, data: []byte{0x17, 0x15}},             // VREG1OUT 5.0V, VREG2OUT -4.875V
		{cmd: 0xC1, data: []byte{0x41}},                   // VGH/VGL
		{cmd: 0xC5, data: []byte{0x00, 0x12, 0x80}},       // VCOM
		{cmd: CmdCOLMOD, data: []byte{0x55}},              // raised to 0x66 on SPI
		{cmd: 0xB0, data: []byte{0x00}},                   // interface mode
		{cmd: 0xB1, data: []byte{0xA0}},                   // frame rate 60Hz
		{cmd: 0xB4, data: []byte{0x02}},                   // 2-dot inversion
		{cmd: 0xB6, data: []byte{0x02, 0x02, 0x3B}},       // display function
		{cmd: 0xE9, data: []byte{0x00}},                   // set image function
		{cmd: 0xF7, data: []byte{0xA9, 0x51, 0x2C, 0x82}}, // adjust control 3
		{cmd: CmdSLPOUT, delay: 120 * ms},
		{cmd: CmdDISPON, delay: 25 * ms},
	},
}

var hx8357b = chip{
	name:    "HX8357B",
	width:   320,
	height:  480,
	madctl:  [4]uint8{0x00, MadMX | MadMV, MadMY | MadMX, MadMY | MadMV},
	idReg:   0xD0,
	idBytes: 1,
	id:      0x90,
	init: []step{
		{cmd: CmdSLPOUT, delay: 20 * ms},
		{cmd: 0xD0, data: []byte{0x07, 0x42, 0x18}},             // power
		{cmd: 0xD1, data: []byte{0x00, 0x07, 0x10}},             // VCOM
		{cmd: 0xD2, data: []byte{0x01, 0x02}},                   // power for normal mode
		{cmd: 0xC0, data: []byte{0x10, 0x3B, 0x00, 0x02, 0x11}}, // panel driving
		{cmd: 0xC5, data: []byte{0x08}},                         // frame rate
		{cmd: 0xC8, data: []byte{0x00, 0x32, 0x36, 0x45, 0x06, 0x16, 0x37, 0x75, 0x77, 0x54, 0x0C, 0x00}},
		{cmd: CmdCOLMOD, data: []byte{0x55}},
		{cmd: CmdCASET, data: []byte{0x00, 0x00, 0x01, 0x3F}},
		{cmd: CmdPASET, data: []byte{0x00, 0x00, 0x01, 0xDF}, delay: 120 * ms},
		{cmd: CmdDISPON, delay: 20 * ms},
	},
}
