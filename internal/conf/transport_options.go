package conf

// TransportOptions controls the ICE/DTLS/SCTP transport parameters that the
// conference core asks the media engine to honor for every newly created
// transport.
type TransportOptions struct {
	EnableUDP                      bool   `yaml:"enableUdp"`
	EnableTCP                      bool   `yaml:"enableTcp"`
	PreferUDP                      bool   `yaml:"preferUdp"`
	EnableSCTP                     bool   `yaml:"enableSctp"`
	InitialAvailableOutgoingBitrate uint32 `yaml:"initialAvailableOutgoingBitrate"`
}

func defaultTransportOptions() TransportOptions {
	return TransportOptions{
		EnableUDP:                       true,
		EnableTCP:                       true,
		PreferUDP:                       true,
		EnableSCTP:                      true,
		InitialAvailableOutgoingBitrate: 600000,
	}
}
