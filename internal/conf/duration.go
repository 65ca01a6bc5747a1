package conf

import (
	"strconv"
	"time"
)

// Duration is a time.Duration that is marshaled/unmarshaled as a Go duration
// string ("10s", "1h30m") instead of an integer count of nanoseconds.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}
	return d.unmarshalString(in)
}

// UnmarshalEnv implements env.unmarshaler.
func (d *Duration) UnmarshalEnv(v string) error {
	return d.unmarshalString(v)
}

func (d *Duration) unmarshalString(in string) error {
	parsed, err := time.ParseDuration(in)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return strconv.Quote(time.Duration(d).String())
}
