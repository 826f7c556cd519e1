package protocol

import (
	"strings"

	"github.com/juju/errors"
)

// Form selects a wire representation.
type Form int

const (
	FormBinary Form = iota
	FormText
)

func (f Form) String() string {
	switch f {
	case FormBinary:
		return "binary"
	case FormText:
		return "text"
	}
	return "unknown"
}

// ParseForm maps a configuration string to a Form.
func ParseForm(s string) (Form, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "bin":
		return FormBinary, nil
	case "text", "json":
		return FormText, nil
	}
	return 0, errors.NotValidf("wire form %q", s)
}

// Encode serializes r in the given form.
func Encode(r Record, form Form) ([]byte, error) {
	switch form {
	case FormBinary:
		return EncodeBinary(r)
	case FormText:
		return EncodeText(r)
	}
	return nil, errors.NotValidf("wire form %d", int(form))
}

// Classify guesses the form of a frame from its first bytes without
// decoding it.
func Classify(b []byte) (Form, bool) {
	if len(b) >= 2 && le.Uint16(b) == Magic {
		return FormBinary, true
	}
	if len(b) > 0 && b[0] == '{' {
		return FormText, true
	}
	return 0, false
}

// Decode parses a frame of either form.
func Decode(b []byte) (Record, Form, error) {
	form, ok := Classify(b)
	if !ok {
		// A corrupted magic is still a binary frame if its length fits.
		if len(b) >= MinBinarySize && len(b) <= MaxBinarySize {
			r, err := DecodeBinary(b)
			return r, FormBinary, err
		}
		return Record{}, 0, errors.Annotate(ErrMalformedFrame, "unrecognised frame")
	}
	var r Record
	var err error
	if form == FormBinary {
		r, err = DecodeBinary(b)
	} else {
		r, err = DecodeText(b)
	}
	return r, form, err
}
