// pkg/logger/logger.go

package logger

import (
	"io"
	"os"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.Logger
)

// Options controls which cores the logger is built from.
type Options struct {
	// Verbose enables the human console core on Console at debug level.
	Verbose bool
	// Level applies to the file core. Empty means LOG_LEVEL, then info.
	Level string
	// FilePath enables a JSON file core. "auto" picks the first writable
	// platform path.
	FilePath string
	// Console defaults to stderr so stdout only carries the report.
	Console io.Writer
}

// Initialize builds the global logger and installs it for zap and otelzap.
// Returns the resolved log file path, if any.
func Initialize(opts Options) (string, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var cores []zapcore.Core
	if opts.Verbose {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(DefaultConsoleEncoderConfig(IsColourTerminal(console))),
			zapcore.Lock(zapcore.AddSync(console)),
			zapcore.DebugLevel,
		))
	}

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}

	var path string
	if opts.FilePath != "" {
		path = opts.FilePath
		if path == "auto" {
			path = ResolveLogPath()
		}
		if path != "" {
			writer, err := GetLogFileWriter(path)
			if err != nil {
				install(newLogger(cores))
				return "", err
			}
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(DefaultFileEncoderConfig()),
				writer,
				ParseLogLevel(level),
			))
		}
	}

	install(newLogger(cores))
	return path, nil
}

// InitFallback installs a logger that discards everything. Used until the
// configuration has been read.
func InitFallback() {
	install(zap.NewNop())
}

func newLogger(cores []zapcore.Core) *zap.Logger {
	if len(cores) == 0 {
		return zap.NewNop()
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func install(l *zap.Logger) {
	SetLogger(l)
	zap.ReplaceGlobals(l)
	otelzap.ReplaceGlobals(otelzap.New(l))
}

// L returns the global logger, never nil.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return zap.NewNop()
	}
	return log
}

// SetLogger replaces the global logger without touching zap or otelzap globals.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Sync flushes any buffered log entries. Should be called before the application exits.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if log == nil {
		return nil
	}
	return log.Sync()
}
