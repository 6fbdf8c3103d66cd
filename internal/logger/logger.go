// internal/logger/logger.go
package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger: colored console output, plus a JSON file
// sink when filePath is non-empty. The returned closer flushes the file sink;
// call it on shutdown.
func New(debug bool, filePath string) (*zap.Logger, func(), error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(
			PrettyEncoder(),
			zapcore.AddSync(zapcore.Lock(os.Stdout)),
			level,
		),
	}

	closer := func() {}
	if filePath != "" {
		fileWriter, err := NewSafeFileWriter(filePath, 5*time.Second, zap.NewNop())
		if err != nil {
			return nil, nil, err
		}
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(fileWriter), level))
		closer = func() { _ = fileWriter.Close() }
	}

	return zap.New(zapcore.NewTee(cores...)), closer, nil
}
