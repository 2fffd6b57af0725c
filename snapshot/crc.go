package snapshot

import "github.com/sigurn/crc16"

// crcStart is the first byte covered by the header CRC: everything after
// the CRC field itself.
const crcStart = offRequiredFeatureFlags

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum returns the CRC-16/CCITT (poly 0x1021, init 0xFFFF) of b.
func Checksum(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// Seal recomputes the CRC of an encoded snapshot in place. The header's
// BytecodeSize field must already be correct.
func Seal(data []byte) error {
	if len(data) < HeaderSize {
		return ErrCorruptHeader
	}
	size := int(readUint16(data, offBytecodeSize))
	if size < HeaderSize || size > len(data) {
		return ErrCorruptHeader
	}
	writeUint16(data, offCRC, Checksum(data[crcStart:size]))
	return nil
}
