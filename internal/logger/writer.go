package logger

import "time"

// Writer is implemented by anything that can receive log lines.
// Components take a Writer as a collaborator rather than reaching for a
// process-wide logger, so tests can substitute a fake.
type Writer interface {
	Log(level Level, format string, args ...interface{})
}

// destination is a log output (stdout, file, syslog, ...).
type destination interface {
	log(t time.Time, level Level, format string, args ...interface{})
	close()
}
