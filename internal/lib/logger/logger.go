package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/linemk/market-checkout/internal/lib/logger/handlers/slogpretty"
)

// окружения из config.Env
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// ServiceName попадает в каждую JSON-запись, чтобы отличать сервис в общем сборщике логов
const ServiceName = "market-checkout"

// SetupLogger пишет в stdout: local — цветной pretty, dev — JSON с debug и source, остальное — JSON info
func SetupLogger(env string) *slog.Logger {
	return New(env, os.Stdout)
}

func New(env string, out io.Writer) *slog.Logger {
	switch env {
	case EnvLocal:
		return setupPrettySlog(out)
	case EnvDev:
		return jsonLogger(out, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	default:
		// prod и всё незнакомое
		return jsonLogger(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
}

func jsonLogger(out io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(slog.NewJSONHandler(out, opts)).With(slog.String("service", ServiceName))
}

func setupPrettySlog(out io.Writer) *slog.Logger {
	color.NoColor = false

	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	return slog.New(opts.NewPrettyHandler(out))
}
