package gapanalysis

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Percent is a percentage that may be undefined. A module with no people has
// no denominator, so its actual and gap percentages are undefined rather than
// zero. The zero value is undefined.
type Percent struct {
	value   float64
	defined bool
}

// NoData is the undefined percentage.
var NoData = Percent{}

// DefinedPercent returns a defined percentage with the given value.
func DefinedPercent(v float64) Percent {
	return Percent{value: v, defined: true}
}

// ActualPercent returns count/total*100, or NoData when total is not positive.
func ActualPercent(count, total int64) Percent {
	if total <= 0 {
		return NoData
	}
	// multiply first so whole-number ratios stay exact
	return DefinedPercent(float64(count) * 100 / float64(total))
}

// Defined reports whether the percentage has a value.
func (p Percent) Defined() bool {
	return p.defined
}

// Value returns the value and whether it is defined.
func (p Percent) Value() (float64, bool) {
	return p.value, p.defined
}

// Minus returns p - target, propagating NoData.
func (p Percent) Minus(target float64) Percent {
	if !p.defined {
		return NoData
	}
	return DefinedPercent(p.value - target)
}

// String formats with two decimals, or "n/a" when undefined.
func (p Percent) String() string {
	if !p.defined {
		return "n/a"
	}
	return strconv.FormatFloat(p.value, 'f', 2, 64)
}

// MarshalJSON encodes undefined as null.
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON decodes null as undefined.
func (p *Percent) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = NoData
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = DefinedPercent(v)
	return nil
}
