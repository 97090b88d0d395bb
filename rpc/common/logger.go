package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LoggerNames lists every logger used inside dCP
var LoggerNames = []string{"server", "command", "transport/rpc", "rpc", "chat"}

// logTimeFormat is the timestamp prefix of every line
const logTimeFormat = "2006/01/02 15:04:05.000"

var (
	outputMu    sync.Mutex
	output      io.Writer = os.Stdout
	factoryOnce sync.Once
)

// SetLogOutput redirects all dCP loggers, nil restores stdout
func SetLogOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	output = w
}

// --------------------------------------------------------------------------
// Line logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// lineLogger writes one "time LEVEL | name | message" line per call.
// The level may change while other goroutines log.
type lineLogger struct {
	name  string
	level atomic.Int64
}

// CreateLogger implements the dragonboat logger.Factory signature
func CreateLogger(pkgName string) logger.ILogger {
	l := &lineLogger{name: pkgName}
	l.level.Store(int64(logger.INFO))
	return l
}

func (l *lineLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(int64(level))
}

func (l *lineLogger) enabled(level logger.LogLevel) bool {
	return logger.LogLevel(l.level.Load()) >= level
}

func (l *lineLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.write("DEBUG", format, args)
	}
}

func (l *lineLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.write("INFO", format, args)
	}
}

func (l *lineLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.write("WARN", format, args)
	}
}

func (l *lineLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.write("ERROR", format, args)
	}
}

// Panicf always logs and panics, independent of the level
func (l *lineLogger) Panicf(format string, args ...interface{}) {
	msg := l.write("PANIC", format, args)
	panic(msg)
}

func (l *lineLogger) write(label, format string, args []interface{}) string {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	line := fmt.Sprintf("%s %-5s | %-15s | %s\n", time.Now().Format(logTimeFormat), label, l.name, msg)

	outputMu.Lock()
	_, _ = io.WriteString(output, line)
	outputMu.Unlock()
	return msg
}

// --------------------------------------------------------------------------
// Levels and initialization
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("%w: invalid log level: %s. must be one of debug, info, warn, error", ErrConfiguration, level)
	}
}

// InitLoggers installs the line format and applies the log level to all dCP loggers
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	// dragonboat accepts the factory only once
	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range LoggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
