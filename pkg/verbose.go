package hifi

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var globalVerboseLevel int
var debugFlags map[string]bool

var (
	globalLogger *zap.Logger
	sugar        *zap.SugaredLogger
)

func init() {
	setLogger(zap.New(stderrCore(), zap.AddCallerSkip(1)))
}

// LogConfig configures where log output goes in addition to stderr
type LogConfig struct {
	File       string // empty disables the rotated log file
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// InitLogging installs the global logger. Messages always go to stderr;
// when cfg.File is set they are also written as JSON to a rotated file.
func InitLogging(cfg LogConfig) error {
	cores := []zapcore.Core{stderrCore()}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return &ConfigError{Key: "log.file", Err: err}
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			zapcore.DebugLevel,
		))
	}

	setLogger(zap.New(zapcore.NewTee(cores...), zap.AddCallerSkip(1)))
	return nil
}

// SyncLogging flushes buffered log entries
func SyncLogging() error {
	return globalLogger.Sync()
}

func setLogger(l *zap.Logger) {
	globalLogger = l
	sugar = l.Sugar()
}

func stderrCore() zapcore.Core {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.CallerKey = ""
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	)
}

// SetVerboseLevel sets the global verbose level
func SetVerboseLevel(level int) {
	globalVerboseLevel = level
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return globalVerboseLevel
}

// VerboseEnter logs function entry at level 3+ and returns a defer function for exit logging
func VerboseEnter() func() {
	if globalVerboseLevel < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}

	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	sugar.Debugw("enter", "func", funcName)
	return func() {
		sugar.Debugw("exit", "func", funcName)
	}
}

// VerboseLog logs a message at the specified verbose level
func VerboseLog(level int, format string, args ...interface{}) {
	if globalVerboseLevel < level {
		return
	}
	format = strings.TrimSuffix(format, "\n")
	if level <= 1 {
		sugar.Infof(format, args...)
	} else {
		sugar.With("verbose", level).Debugf(format, args...)
	}
}

// Warnf logs a warning regardless of the verbose level
func Warnf(format string, args ...interface{}) {
	sugar.Warnf(strings.TrimSuffix(format, "\n"), args...)
}

// SetDebugFlags sets the debug flags from a comma-separated string
// Supports both simple flags ("scan,hash") and key:value format ("scan:true,hash:false")
func SetDebugFlags(flagsStr string) {
	debugFlags = make(map[string]bool)
	if flagsStr == "" {
		return
	}

	for _, flag := range strings.Split(flagsStr, ",") {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}

		parts := strings.SplitN(flag, ":", 2)
		flagName := strings.ToLower(parts[0])
		flagValue := true

		if len(parts) > 1 {
			switch strings.ToLower(parts[1]) {
			case "false", "0", "no", "off":
				flagValue = false
			}
		}

		debugFlags[flagName] = flagValue
	}
}

// IsDebugEnabled returns true if the specified debug flag is enabled
func IsDebugEnabled(flag string) bool {
	if debugFlags == nil {
		return false
	}
	return debugFlags[strings.ToLower(flag)]
}
