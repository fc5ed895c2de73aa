package repository

import (
	"encoding/json"
	"fmt"
)

// decodeDetail turns a stored detail value into out. Backends hand back
// JSON text, raw bytes, or an already-decoded map depending on the driver.
func decodeDetail(raw any, out any) error {
	switch v := raw.(type) {
	case nil:
		return fmt.Errorf("%w: empty detail", ErrCorruptedValue)
	case string:
		return unmarshalDetail([]byte(v), out)
	case []byte:
		return unmarshalDetail(v, out)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptedValue, err)
		}
		return unmarshalDetail(b, out)
	}
}

func unmarshalDetail(b []byte, out any) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty detail", ErrCorruptedValue)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptedValue, err)
	}
	return nil
}

func encodeDetail(v any) ([]byte, error) {
	return json.Marshal(v)
}
