package conv

import "github.com/sigurn/crc8"

// crc8Table is CRC-8 with polynomial 0x31 (x8 + x5 + x4 + 1) and initial
// value 0xFF, used by Sensirion and Aosong sensors.
var crc8Table = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
})

func CRC8(data []byte) byte {
	return crc8.Checksum(data, crc8Table)
}
