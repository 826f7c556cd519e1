package protocol

import "github.com/juju/errors"

// Decode and encode failures. Callers match with errors.Is.
const (
	ErrChecksumMismatch   = errors.ConstError("protocol: checksum mismatch")
	ErrMalformedFrame     = errors.ConstError("protocol: malformed frame")
	ErrBadMagic           = errors.ConstError("protocol: bad magic")
	ErrUnsupportedVersion = errors.ConstError("protocol: unsupported version")
	ErrEncodeOverflow     = errors.ConstError("protocol: value does not fit wire field")
)
