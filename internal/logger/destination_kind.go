package logger

// Destination is a log destination.
type Destination int

// Supported destinations.
const (
	DestinationStdout Destination = iota
	DestinationFile
	DestinationSyslog
)
