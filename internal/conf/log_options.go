package conf

import (
	"fmt"
	"strings"

	"github.com/riftward/sfucore/internal/logger"
)

// LogLevel is the logLevel configuration parameter.
type LogLevel logger.Level

var logLevelNames = map[string]logger.Level{
	"debug": logger.Debug,
	"info":  logger.Info,
	"warn":  logger.Warn,
	"error": logger.Error,
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *LogLevel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}
	return l.unmarshalString(in)
}

// UnmarshalEnv implements env.unmarshaler.
func (l *LogLevel) UnmarshalEnv(v string) error {
	return l.unmarshalString(v)
}

func (l *LogLevel) unmarshalString(in string) error {
	lv, ok := logLevelNames[strings.ToLower(in)]
	if !ok {
		return fmt.Errorf("invalid log level: '%s'", in)
	}
	*l = LogLevel(lv)
	return nil
}

// LogDestinations is the logDestinations configuration parameter.
type LogDestinations []logger.Destination

var logDestinationNames = map[string]logger.Destination{
	"stdout": logger.DestinationStdout,
	"file":   logger.DestinationFile,
	"syslog": logger.DestinationSyslog,
}

func (d *LogDestinations) contains(v logger.Destination) bool {
	for _, item := range *d {
		if item == v {
			return true
		}
	}
	return false
}

func (d *LogDestinations) unmarshalNames(names []string) error {
	*d = nil
	for _, name := range names {
		v, ok := logDestinationNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("invalid log destination: '%s'", name)
		}
		if d.contains(v) {
			return fmt.Errorf("log destination '%s' set twice", name)
		}
		*d = append(*d, v)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *LogDestinations) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in []string
	if err := unmarshal(&in); err != nil {
		return err
	}
	return d.unmarshalNames(in)
}

// UnmarshalEnv implements env.unmarshaler.
func (d *LogDestinations) UnmarshalEnv(v string) error {
	return d.unmarshalNames(strings.Split(v, ","))
}
