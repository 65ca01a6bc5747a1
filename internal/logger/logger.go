// Package logger contains a logger implementation shared by every component
// of the conference core. Components receive a Writer explicitly (see
// Writer in writer.go) rather than calling into a process-wide logger.
package logger

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Logger is a log handler that fans a single log line out to every
// configured destination.
type Logger struct {
	level Level

	destinations []destination
	mutex        sync.Mutex
}

// New allocates a Logger. filePath is only used when DestinationFile is
// requested. syslogPrefix identifies this process in syslog records.
func New(level Level, destinations []Destination, filePath string, syslogPrefix string, structured bool) (*Logger, error) {
	lh := &Logger{
		level: level,
	}

	for _, destType := range destinations {
		switch destType {
		case DestinationStdout:
			lh.destinations = append(lh.destinations, newDestinationStdout(structured))

		case DestinationFile:
			dest, err := newDestinationFile(structured, filePath)
			if err != nil {
				lh.Close()
				return nil, err
			}
			lh.destinations = append(lh.destinations, dest)

		case DestinationSyslog:
			dest, err := newDestinationSyslog(syslogPrefix)
			if err != nil {
				lh.Close()
				return nil, err
			}
			lh.destinations = append(lh.destinations, dest)
		}
	}

	return lh, nil
}

// Close closes a Logger.
func (lh *Logger) Close() {
	for _, dest := range lh.destinations {
		dest.close()
	}
}

// SetLevel changes the minimum level logged, for configuration hot reload.
func (lh *Logger) SetLevel(level Level) {
	lh.mutex.Lock()
	defer lh.mutex.Unlock()
	lh.level = level
}

// https://golang.org/src/log/log.go#L78
func itoa(i int, wid int) []byte {
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	b[bp] = byte('0' + i)
	return b[bp:]
}

func writeTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	var intbuf bytes.Buffer

	year, month, day := t.Date()
	intbuf.Write(itoa(year, 4))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(int(month), 2))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(day, 2))
	intbuf.WriteByte(' ')

	hour, min, sec := t.Clock()
	intbuf.Write(itoa(hour, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(min, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(sec, 2))
	intbuf.WriteByte(' ')

	if useColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), intbuf.String()))
	} else {
		buf.WriteString(intbuf.String())
	}
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	var s, code string
	switch level {
	case Debug:
		s, code = "DEB", color.Debug.Code()
	case Info:
		s, code = "INF", color.Green.Code()
	case Warn:
		s, code = "WAR", color.Warn.Code()
	case Error:
		s, code = "ERR", color.Error.Code()
	}

	if useColor {
		buf.WriteString(color.RenderString(code, s))
	} else {
		buf.WriteString(s)
	}
}

// Log writes a log entry to every destination.
func (lh *Logger) Log(level Level, format string, args ...interface{}) {
	lh.mutex.Lock()
	defer lh.mutex.Unlock()

	if level < lh.level {
		return
	}

	t := time.Now()

	for _, dest := range lh.destinations {
		dest.log(t, level, format, args...)
	}
}
