package protocol

import (
	"encoding/binary"
	"math"

	"github.com/juju/errors"
)

// Binary frame constants.
const (
	Magic   uint16 = 0xAD02
	Version byte   = 2

	headerSize    = 20
	aggregateSize = 7
	healthSize    = 15
	crcSize       = 2

	MinBinarySize = headerSize + crcSize
	MaxBinarySize = MinBinarySize + aggregateSize + healthSize
)

var le = binary.LittleEndian

// EncodeBinary serializes r into the fixed little-endian layout.
// Distances outside the int16 range fail with ErrEncodeOverflow.
func EncodeBinary(r Record) ([]byte, error) {
	if r.Distance < math.MinInt16 || r.Distance > math.MaxInt16 {
		return nil, errors.Annotatef(ErrEncodeOverflow, "distance %d", r.Distance)
	}
	flags := r.normalizedFlags()

	b := make([]byte, 0, MaxBinarySize)
	b = le.AppendUint16(b, Magic)
	b = append(b, Version)
	b = append(b, r.Device[:]...)
	b = le.AppendUint32(b, r.Timestamp)
	b = le.AppendUint16(b, uint16(int16(r.Distance)))
	b = le.AppendUint16(b, r.BatteryMV)
	b = append(b, byte(r.Signal), byte(flags), r.RunCount)

	if a := r.Aggregate; a != nil {
		b = le.AppendUint16(b, uint16(a.Min))
		b = le.AppendUint16(b, uint16(a.Max))
		b = le.AppendUint16(b, uint16(a.Avg))
		b = append(b, a.Count)
	}
	if h := r.Health; h != nil {
		b = le.AppendUint32(b, h.UptimeS)
		b = le.AppendUint32(b, h.FreeKiB)
		b = append(b, byte(h.TempC))
		b = le.AppendUint16(b, h.TxOK)
		b = le.AppendUint16(b, h.TxFail)
		b = le.AppendUint16(b, h.SensorErrors)
	}

	return le.AppendUint16(b, CRC16(b)), nil
}

// binarySize returns the frame length implied by flags.
func binarySize(f Flags) int {
	n := MinBinarySize
	if f.Has(FlagAggregated) {
		n += aggregateSize
	}
	if f.Has(FlagHealth) {
		n += healthSize
	}
	return n
}

// DecodeBinary parses a binary frame. The checksum is verified before any
// field is interpreted, so a corrupted frame never yields a record.
func DecodeBinary(b []byte) (Record, error) {
	var r Record
	if len(b) < MinBinarySize || len(b) > MaxBinarySize {
		return r, errors.Annotatef(ErrMalformedFrame, "binary frame length %d", len(b))
	}

	body, trailer := b[:len(b)-crcSize], b[len(b)-crcSize:]
	if want, got := le.Uint16(trailer), CRC16(body); want != got {
		return r, errors.Annotatef(ErrChecksumMismatch, "crc %04x, computed %04x", want, got)
	}
	if m := le.Uint16(body[0:2]); m != Magic {
		return r, errors.Annotatef(ErrBadMagic, "%04x", m)
	}
	if v := body[2]; v != Version {
		return r, errors.Annotatef(ErrUnsupportedVersion, "%d", v)
	}

	flags := Flags(body[18])
	if want := binarySize(flags); len(b) != want {
		return r, errors.Annotatef(ErrMalformedFrame, "flags %02x need %d bytes, have %d", uint8(flags), want, len(b))
	}

	copy(r.Device[:], body[3:9])
	r.Timestamp = le.Uint32(body[9:13])
	r.Distance = int32(int16(le.Uint16(body[13:15])))
	r.BatteryMV = le.Uint16(body[15:17])
	r.Signal = int8(body[17])
	r.Flags = flags
	r.RunCount = body[19]

	p := body[headerSize:]
	if flags.Has(FlagAggregated) {
		r.Aggregate = &Aggregate{
			Min:   int16(le.Uint16(p[0:2])),
			Max:   int16(le.Uint16(p[2:4])),
			Avg:   int16(le.Uint16(p[4:6])),
			Count: p[6],
		}
		p = p[aggregateSize:]
	}
	if flags.Has(FlagHealth) {
		r.Health = &Health{
			UptimeS:      le.Uint32(p[0:4]),
			FreeKiB:      le.Uint32(p[4:8]),
			TempC:        int8(p[8]),
			TxOK:         le.Uint16(p[9:11]),
			TxFail:       le.Uint16(p[11:13]),
			SensorErrors: le.Uint16(p[13:15]),
		}
	}
	return r, nil
}
