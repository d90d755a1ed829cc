package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const ServiceName = "openrouter-chat"

// NewRotatingFile devuelve un writer con rotación (10 MB, 3 backups, 28 días, comprimido).
func NewRotatingFile(path string) (*lumberjack.Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}, nil
}

// NewLogger construye el logger de producción. Si logFile no está vacío también escribe
// JSON en un archivo rotado.
func NewLogger(logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewProduction()
	}
	file, err := NewRotatingFile(logFile)
	if err != nil {
		return nil, err
	}
	return newTeeLogger(zapcore.Lock(os.Stdout), zapcore.AddSync(file)), nil
}

// NewFileLogger escribe solo al archivo rotado; lo usa el cliente para no ensuciar la terminal.
func NewFileLogger(logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewNop(), nil
	}
	file, err := NewRotatingFile(logFile)
	if err != nil {
		return nil, err
	}
	return newTeeLogger(zapcore.AddSync(file)), nil
}

func newTeeLogger(sinks ...zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := make([]zapcore.Core, 0, len(sinks))
	for _, sink := range sinks {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, zap.InfoLevel))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// InitTracer registra un TracerProvider que exporta spans como JSON a w.
// Con w nil devuelve un tracer no-op.
func InitTracer(ctx context.Context, w io.Writer) (trace.Tracer, func(context.Context) error, error) {
	if w == nil {
		return noop.NewTracerProvider().Tracer(ServiceName), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer(ServiceName), tp.Shutdown, nil
}
