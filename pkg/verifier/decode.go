package verifier

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/lockgate/lockgate/pkg/gaterr"
)

// DecodeStrict decodes raw into dst, rejecting unknown fields and trailing
// data. Empty or null input leaves dst untouched.
func DecodeStrict(category string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &gaterr.ConfigurationError{Field: category + ".requirements", Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return &gaterr.ConfigurationError{Field: category + ".requirements", Reason: "trailing data"}
	}
	return nil
}
