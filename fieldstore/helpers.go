package fieldstore

import (
	json "github.com/goccy/go-json"
)

func unmarshalJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return Wrap(ErrTypeMismatch, "decode json", err)
	}
	return nil
}
