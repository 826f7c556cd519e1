package protocol

// CRC-16/MODBUS: reflected polynomial 0xA001, initial value 0xFFFF,
// no final xor. Check value for "123456789" is 0x4B37.
const (
	crc16Poly = 0xA001
	crc16Init = 0xFFFF
)

var crc16Table = makeCRC16Table()

func makeCRC16Table() (t [256]uint16) {
	for i := range t {
		c := uint16(i)
		for j := 0; j < 8; j++ {
			if c&1 != 0 {
				c = c>>1 ^ crc16Poly
			} else {
				c >>= 1
			}
		}
		t[i] = c
	}
	return t
}

// CRC16 returns the checksum of data.
func CRC16(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc = crc>>8 ^ crc16Table[byte(crc)^b]
	}
	return crc
}
