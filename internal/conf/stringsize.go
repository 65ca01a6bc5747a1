package conf

import (
	"code.cloudfoundry.org/bytefmt"
)

// StringSize is a byte count that is marshaled/unmarshaled as a
// human-readable string ("64KB", "1MB") instead of a raw integer,
// mirroring Duration's string-based YAML encoding.
type StringSize uint64

// MarshalYAML implements yaml.Marshaler.
func (s StringSize) MarshalYAML() (interface{}, error) {
	return bytefmt.ByteSize(uint64(s)), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}
	return s.unmarshalString(in)
}

// UnmarshalEnv implements env.unmarshaler.
func (s *StringSize) UnmarshalEnv(v string) error {
	return s.unmarshalString(v)
}

func (s *StringSize) unmarshalString(in string) error {
	v, err := bytefmt.ToBytes(in)
	if err != nil {
		return err
	}
	*s = StringSize(v)
	return nil
}

func (s StringSize) String() string {
	return bytefmt.ByteSize(uint64(s))
}
