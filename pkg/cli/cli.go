package cli

import (
	"context"
	"io"
	"os"

	"github.com/m-mizutani/dossier/pkg/utils/logging"
	"github.com/m-mizutani/dossier/pkg/utils/tracing"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	appName = "dossier"
	version = "dev"
)

type Error struct {
	Code    int
	Message string
}

// globalConfig holds flags shared by every command
type globalConfig struct {
	logLevel  string
	logFormat string
	trace     bool
}

func globalFlags(g *globalConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("DOSSIER_LOG_LEVEL"),
			Destination: &g.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("DOSSIER_LOG_FORMAT"),
			Destination: &g.logFormat,
		},
		&cli.BoolFlag{
			Name:        "trace",
			Usage:       "Export OpenTelemetry spans to stderr",
			Sources:     cli.EnvVars("DOSSIER_TRACE"),
			Destination: &g.trace,
		},
	}
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newApp(os.Stdout, os.Stderr).Run(ctx, argv); err != nil {
		logging.From(ctx).Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	var (
		g        globalConfig
		shutdown tracing.Shutdown
	)

	return &cli.Command{
		Name:      appName,
		Writer:    stdout,
		ErrWriter: stderr,
		Usage:     "Answer questions about a career from its records",
		Version:   version,
		Flags:     globalFlags(&g),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if _, err := logging.ParseLevel(g.logLevel); err != nil {
				return ctx, err
			}
			format, err := logging.ParseFormat(g.logFormat)
			if err != nil {
				return ctx, err
			}
			logger := logging.New(g.logLevel, format, c.Root().ErrWriter)
			logging.SetDefault(logger)
			ctx = logging.With(ctx, logger)

			if g.trace {
				shutdown, err = tracing.Setup(c.Root().ErrWriter, appName, version)
				if err != nil {
					return ctx, err
				}
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
		Commands: []*cli.Command{
			askCommand(),
			chatCommand(),
			indexCommand(),
			serveCommand(),
			toolsCommand(),
		},
	}
}

var errNoQuestion = goerr.New("question is required")
