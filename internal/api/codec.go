package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// isCBOR reports whether the request body is declared as CBOR.
func isCBOR(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == contentTypeCBOR
}

// wantsCBOR reports whether the client accepts CBOR in preference to JSON.
func wantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mt {
		case contentTypeCBOR:
			return true
		case contentTypeJSON:
			return false
		}
	}
	return false
}

// writeWire renders a wire message as CBOR or JSON depending on Accept.
func writeWire(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !wantsCBOR(r) {
		writeJSON(w, status, v)
		return
	}
	data, err := wire.Marshal(v)
	if err != nil {
		writeInternalError(w, "encoding response")
		return
	}
	w.Header().Set("Content-Type", contentTypeCBOR)
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// checkVersion accepts a missing version in JSON bodies and fills it in.
func checkVersion(v *int) error {
	switch *v {
	case 0:
		*v = wire.ProtocolVersion
		return nil
	case wire.ProtocolVersion:
		return nil
	default:
		return fmt.Errorf("%w: %d", wire.ErrUnsupportedVersion, *v)
	}
}

// decodeConfig reads a LampConfig body.
func decodeConfig(r *http.Request) (*wire.LampConfig, error) {
	if isCBOR(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
		}
		return wire.DecodeConfig(data)
	}
	var cfg wire.LampConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	if err := checkVersion(&cfg.Version); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeCommand reads a LampCommand body.
func decodeCommand(r *http.Request) (*wire.LampCommand, error) {
	if isCBOR(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
		}
		return wire.DecodeCommand(data)
	}
	var cmd wire.LampCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrMalformed, err)
	}
	if err := checkVersion(&cmd.Version); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}
