package dat

import "github.com/sigurn/crc16"

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum is CRC-16/XMODEM: polynomial 0x1021, initial value 0, no
// reflection.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
