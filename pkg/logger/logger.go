// Package logger provides the process-wide leveled logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	base    = newBase()
	logFile *os.File
	zone    = &zoneFormatter{inner: &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000", DisableColors: true}}
	mu      sync.Mutex
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return l
}

func init() {
	base.SetFormatter(zone)
}

// zoneFormatter renders entry timestamps in a fixed zone when one is set.
type zoneFormatter struct {
	inner logrus.Formatter
	loc   atomic.Pointer[time.Location]
}

func (f *zoneFormatter) Format(e *logrus.Entry) ([]byte, error) {
	if loc := f.loc.Load(); loc != nil {
		e.Time = e.Time.In(loc)
	}
	return f.inner.Format(e)
}

// Init directs log output to the file at logPath, appending to it.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	base.SetOutput(f)
	return nil
}

// Close closes the log file and restores stderr output.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
		base.SetOutput(os.Stderr)
	}
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetLevel accepts ERROR, WARN, INFO, DEBUG, TRACE or ALL.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// ParseLevel maps a level name to a logrus level. ALL enables everything.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR":
		return logrus.ErrorLevel, nil
	case "WARN", "WARNING":
		return logrus.WarnLevel, nil
	case "", "INFO":
		return logrus.InfoLevel, nil
	case "DEBUG":
		return logrus.DebugLevel, nil
	case "TRACE", "ALL":
		return logrus.TraceLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetTimezoneOffset renders timestamps at a fixed UTC offset in hours.
// Nil restores the local zone.
func SetTimezoneOffset(hours *int) {
	if hours == nil {
		zone.loc.Store(nil)
		return
	}
	zone.loc.Store(time.FixedZone(fmt.Sprintf("UTC%+d", *hours), *hours*3600))
}

// Location returns the zone timestamps are rendered in.
func Location() *time.Location {
	if loc := zone.loc.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

// Trace logs a trace message.
func Trace(format string, v ...interface{}) {
	base.Tracef(format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// GetWriter returns the current log file, or io.Discard when logging to stderr.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile
	}
	return io.Discard
}
