package tapedeck

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

const (
	BuildTypeNone    = ""
	BuildTypeDev     = "dev"
	BuildTypeRelease = "release"

	LogDirectory = "logs"
	LogFilename  = "tapedeck-latest-run.log"

	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 14
)

// NewLogger initializes and returns a new logger instance based on the build type.
// - For release builds, logs to a rotating file with info level and above (debug when verbose).
// - For development builds, logs to stderr with debug level and colorful output.
func NewLogger(buildType string, verbose bool) (*zap.SugaredLogger, error) {
	if buildType == BuildTypeRelease {
		return newReleaseLogger(verbose)
	}

	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	applyEncoderSettings(&loggerConfig.EncoderConfig)

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return logger.Sugar(), nil
}

func newReleaseLogger(verbose bool) (*zap.SugaredLogger, error) {
	if err := util.EnsureDirExists(LogDirectory); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", LogDirectory, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	applyEncoderSettings(&encoderConfig)

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(LogDirectory, LogFilename),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	})

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), fileWriter, level)
	return zap.New(core).Sugar(), nil
}

// human-readable timestamps and aligned names
func applyEncoderSettings(encoderConfig *zapcore.EncoderConfig) {
	encoderConfig.EncodeCaller = nil
	encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("%-27s", name))
	}
}
