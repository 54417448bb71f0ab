package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes a JSON value that clients send either as a number or as a
// numeric string ("2"). Anything else fails the bind, which surfaces as an
// invalid-input error to the caller.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot decode %q as an integer", raw)
	}

	*f = FlexInt(value)
	return nil
}

func (f FlexInt) Int() int { return int(f) }

func (f FlexInt) Int64() int64 { return int64(f) }
