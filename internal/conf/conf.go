// Package conf contains the struct that holds the configuration of the
// conference core and the logic to load it from a YAML file with
// environment variable overrides.
package conf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	confenv "github.com/riftward/sfucore/internal/conf/env"
	"github.com/riftward/sfucore/internal/logger"
)

func firstThatExists(paths []string) string {
	for _, pa := range paths {
		if _, err := os.Stat(pa); err == nil {
			return pa
		}
	}
	return ""
}

// DefaultConfPaths is the list of paths searched, in order, when no
// configuration path is given explicitly.
var DefaultConfPaths = []string{
	"sfucore.yml",
	"/usr/local/etc/sfucore.yml",
	"/usr/etc/sfucore.yml",
	"/etc/sfucore/sfucore.yml",
}

// Conf is the configuration of the conference core.
type Conf struct {
	// network
	Port          int    `yaml:"port"`
	MetricsPort   int    `yaml:"metricsPort"`
	UseTLS        bool   `yaml:"useTls"`
	ServerCert    string `yaml:"serverCert"`
	ServerKey     string `yaml:"serverKey"`
	AnnouncedIP   string `yaml:"announcedIp"`
	ReadTimeout   Duration `yaml:"readTimeout"`
	MaxMessageSize StringSize `yaml:"maxMessageSize"`

	// media engine
	RTCMinPort        uint16            `yaml:"rtcMinPort"`
	RTCMaxPort        uint16            `yaml:"rtcMaxPort"`
	WorkerCount       int               `yaml:"workerCount"`
	Codecs            []Codec           `yaml:"codecs"`
	TransportOptions  TransportOptions  `yaml:"transportOptions"`
	WorkerCostCPUWeight float64         `yaml:"workerCostCpuWeight"`
	WorkerCostRouterWeight float64      `yaml:"workerCostRouterWeight"`

	// conference limits
	MaxParticipantsPerConference int      `yaml:"maxParticipantsPerConference"`
	OperationTimeout              Duration `yaml:"operationTimeout"`
	IdleConferenceTimeout          Duration `yaml:"idleConferenceTimeout"`

	// logging
	LogLevel        LogLevel        `yaml:"logLevel"`
	LogDestinations LogDestinations `yaml:"logDestinations"`
	LogFile         string          `yaml:"logFile"`
	StructuredLogs  bool            `yaml:"structuredLogs"`

	// lifecycle hooks, run through externalcmd
	RunOnConferenceCreate       string   `yaml:"runOnConferenceCreate"`
	RunOnConferenceEmpty        string   `yaml:"runOnConferenceEmpty"`
	RunOnParticipantJoin        string   `yaml:"runOnParticipantJoin"`
	RunOnParticipantLeave       string   `yaml:"runOnParticipantLeave"`
	RunOnConferenceCreateRestart bool    `yaml:"runOnConferenceCreateRestart"`
}

// Default returns the default configuration.
func Default() Conf {
	return Conf{
		Port:                          8443,
		MetricsPort:                   9443,
		UseTLS:                        false,
		ReadTimeout:                   Duration(10_000_000_000), // 10s
		MaxMessageSize:                StringSize(64 * 1024),    // 64KB
		RTCMinPort:                    10000,
		RTCMaxPort:                    10100,
		WorkerCount:                   0,
		Codecs:                        defaultCodecs(),
		TransportOptions:              defaultTransportOptions(),
		WorkerCostCPUWeight:           1,
		WorkerCostRouterWeight:        1,
		MaxParticipantsPerConference:  0,
		OperationTimeout:              Duration(10_000_000_000),  // 10s
		IdleConferenceTimeout:         Duration(0),
		LogLevel:                      LogLevel(logger.Info),
		LogDestinations:               LogDestinations{logger.DestinationStdout},
		StructuredLogs:                false,
	}
}

// Load reads the configuration from path, applying YAML parsing first and
// environment variable overrides second, then validates the result.
// An empty path searches DefaultConfPaths and falls back to defaults if
// none exist.
func Load(path string) (*Conf, error) {
	conf := Default()

	if path == "" {
		path = firstThatExists(DefaultConfPaths)
	}

	if path != "" {
		byts, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}

		if err := yaml.Unmarshal(byts, &conf); err != nil {
			return nil, fmt.Errorf("parsing configuration: %w", err)
		}
	}

	if err := applyEnv(&conf); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Conf) Validate() error {
	if c.RTCMinPort == 0 || c.RTCMaxPort == 0 || c.RTCMinPort > c.RTCMaxPort {
		return fmt.Errorf("invalid RTC port range: %d-%d", c.RTCMinPort, c.RTCMaxPort)
	}

	if c.UseTLS && (c.ServerCert == "" || c.ServerKey == "") {
		return fmt.Errorf("useTls is set but serverCert/serverKey are missing")
	}

	if c.MetricsPort != 0 && c.MetricsPort == c.Port {
		return fmt.Errorf("metricsPort must differ from port")
	}

	var hasAudio, hasVideo bool
	for _, codec := range c.Codecs {
		if err := codec.validate(); err != nil {
			return fmt.Errorf("invalid codec: %w", err)
		}
		switch codec.Kind {
		case CodecKindAudio:
			hasAudio = true
		case CodecKindVideo:
			hasVideo = true
		}
	}
	if !hasAudio || !hasVideo {
		return fmt.Errorf("at least one audio codec and one video codec must be configured")
	}

	if c.WorkerCostCPUWeight < 0 || c.WorkerCostRouterWeight < 0 {
		return fmt.Errorf("worker cost weights cannot be negative")
	}

	if c.MaxMessageSize == 0 {
		return fmt.Errorf("maxMessageSize must be greater than zero")
	}

	return nil
}

// applyEnv overrides the five variables the signaling surface documents
// explicitly, then lets the generic env loader walk nested structures
// under the CONFERENCE root (e.g. CONFERENCE_TRANSPORTOPTIONS_ENABLESCTP).
func applyEnv(c *Conf) error {
	if v, ok := os.LookupEnv("PORT"); ok {
		if _, err := fmt.Sscanf(v, "%d", &c.Port); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}

	if v, ok := os.LookupEnv("USE_SSL"); ok {
		switch v {
		case "1", "true", "yes":
			c.UseTLS = true
		case "0", "false", "no":
			c.UseTLS = false
		default:
			return fmt.Errorf("USE_SSL: invalid boolean value '%s'", v)
		}
	}

	if v, ok := os.LookupEnv("RTC_MIN_PORT"); ok {
		var p uint64
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("RTC_MIN_PORT: %w", err)
		}
		c.RTCMinPort = uint16(p)
	}

	if v, ok := os.LookupEnv("RTC_MAX_PORT"); ok {
		var p uint64
		if _, err := fmt.Sscanf(v, "%d", &p); err != nil {
			return fmt.Errorf("RTC_MAX_PORT: %w", err)
		}
		c.RTCMaxPort = uint16(p)
	}

	if v, ok := os.LookupEnv("ANNOUNCED_IP"); ok {
		c.AnnouncedIP = v
	}

	return confenv.Load("CONFERENCE", c)
}
