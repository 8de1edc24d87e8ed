package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger that writes console output to stderr with the
// worker name as an initial field.
func New(worker string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stderr),
		zapcore.InfoLevel,
	)

	logger := zap.New(core,
		zap.Fields(
			zap.String("worker", worker),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger.Sugar()
}
