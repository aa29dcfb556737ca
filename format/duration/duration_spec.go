package duration

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eluv-io/errors-go"
)

// Spec represents a time duration. It provides marshaling to and from
// a human readable format, e.g. 1h15m or 200ms
type Spec time.Duration

// Common durations as specs.
const (
	Nanosecond  = Spec(time.Nanosecond)
	Microsecond = Spec(time.Microsecond)
	Millisecond = Spec(time.Millisecond)
	Second      = Spec(time.Second)
	Minute      = Spec(time.Minute)
	Hour        = Spec(time.Hour)
)

// String returns the duration spec formatted like time.Duration.String(), but
// omits zero values.
// Examples:
//   1h0m0s is formatted as 1h
//   1h0m5s is formatted as 1h5s
func (s Spec) String() string {
	d := s.Duration()
	f := d.String()

	r := d / time.Second
	if d > time.Second {
		if r%60 == 0 {
			f = strings.Replace(f, "0s", "", 1)
		}
		if (r/60)%60 == 0 {
			f = strings.Replace(f, "0m", "", 1)
		}
	}
	return f
}

// MarshalText implements custom marshaling using the string representation.
func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements custom unmarshaling from the string representation.
func (s *Spec) UnmarshalText(text []byte) error {
	parsed, err := FromString(string(text))
	if err != nil {
		return errors.E("unmarshal duration", errors.K.Invalid, err)
	}
	*s = parsed
	return nil
}

// UnmarshalJSON unmarshals from a JSON string ("1h15m", "200ms", "99.5") or a
// plain JSON number, which is interpreted as seconds.
func (s *Spec) UnmarshalJSON(bts []byte) error {
	var val interface{}
	err := json.Unmarshal(bts, &val)
	if err != nil {
		return errors.E("unmarshal duration", errors.K.Invalid, err)
	}
	switch v := val.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case float64:
		*s = fromSeconds(v)
		return nil
	default:
		return errors.E("unmarshal duration", errors.K.Invalid,
			"reason", "expected a string or a number",
			"json", string(bts))
	}
}

func (s Spec) Duration() time.Duration {
	return time.Duration(s)
}

// FromString parses the given duration string into a duration spec. A string
// without a unit suffix is interpreted as (fractional) seconds.
func FromString(s string) (Spec, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return Spec(d), nil
	}
	secs, ferr := strconv.ParseFloat(s, 64)
	if ferr == nil {
		return fromSeconds(secs), nil
	}
	return 0, errors.E("parse", err, "duration_spec", s)
}

func fromSeconds(secs float64) Spec {
	return Spec(math.Round(secs * float64(time.Second)))
}

// MustParse parses the given duration string into a duration spec, panicking in
// case of errors.
func MustParse(s string) Spec {
	spec, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return spec
}

// Parse parses the given duration string into a duration spec, returning the
// parsed default in case of errors. Panics if the default cannot be parsed.
func Parse(s string, def string) Spec {
	spec, err := FromString(s)
	if err != nil {
		return MustParse(def)
	}
	return spec
}

// Round rounds the duration spec to 3 decimals of its leading unit, e.g.
// 1.000444ms to 1ms or 1.123555s to 1.124s. See RoundTo.
func (s Spec) Round() Spec {
	return s.RoundTo(3)
}

// RoundTo rounds the duration spec to the given number of decimals of its
// leading unit (ns, µs, ms or s). Durations of a minute or more are rounded
// to full seconds regardless of decimals. Negative decimals are treated as 0.
func (s Spec) RoundTo(decimals int) Spec {
	if decimals < 0 {
		decimals = 0
	}
	d := s.Duration()
	neg := d < 0
	if neg {
		d = -d
	}

	var unit time.Duration
	switch {
	case d >= time.Minute:
		unit = time.Second
		decimals = 0
	case d >= time.Second:
		unit = time.Second
	case d >= time.Millisecond:
		unit = time.Millisecond
	case d >= time.Microsecond:
		unit = time.Microsecond
	default:
		return s
	}

	quantum := unit
	for i := 0; i < decimals && quantum >= 10; i++ {
		quantum /= 10
	}

	d = (d + quantum/2) / quantum * quantum
	if neg {
		d = -d
	}
	return Spec(d)
}
