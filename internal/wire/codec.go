package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrMalformed wraps any decode failure.
	ErrMalformed = errors.New("wire: malformed message")

	// ErrUnsupportedVersion is returned for messages whose Version is not
	// ProtocolVersion.
	ErrUnsupportedVersion = errors.New("wire: unsupported version")

	// ErrInvalidCommand is returned when a LampCommand does not carry
	// exactly one payload.
	ErrInvalidCommand = errors.New("wire: invalid command")
)

// maxMessageSize bounds decoded input; lamp messages are a few hundred bytes.
const maxMessageSize = 64 << 10

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 4096,
		MaxMapPairs:      4096,
		MaxNestedLevels:  16,
		// Readings end up in JSON responses, which cannot carry NaN or Inf.
		NaN: cbor.NaNDecodeForbidden,
		Inf: cbor.InfDecodeForbidden,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any, version func() int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMalformed, len(data), maxMessageSize)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if got := version(); got != ProtocolVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, got)
	}
	return nil
}

// EncodeConfig encodes a LampConfig.
func EncodeConfig(c *LampConfig) ([]byte, error) {
	return Marshal(c)
}

// DecodeConfig decodes and version-checks a LampConfig.
func DecodeConfig(data []byte) (*LampConfig, error) {
	var c LampConfig
	if err := unmarshal(data, &c, func() int { return c.Version }); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodeCommand validates then encodes a LampCommand.
func EncodeCommand(c *LampCommand) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return Marshal(c)
}

// DecodeCommand decodes, version-checks and validates a LampCommand.
func DecodeCommand(data []byte) (*LampCommand, error) {
	var c LampCommand
	if err := unmarshal(data, &c, func() int { return c.Version }); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodeStatus encodes a StatusReport.
func EncodeStatus(r *StatusReport) ([]byte, error) {
	return Marshal(r)
}

// DecodeStatus decodes and version-checks a StatusReport.
func DecodeStatus(data []byte) (*StatusReport, error) {
	var r StatusReport
	if err := unmarshal(data, &r, func() int { return r.Version }); err != nil {
		return nil, err
	}
	return &r, nil
}
