// Package main drives a two motor hub away from whatever is in front of its distance sensor.
package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	_ "github.com/hubrobotics/avoider/components/register"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/control"
	"github.com/hubrobotics/avoider/hub"
	"github.com/hubrobotics/avoider/logging"
)

const (
	// Flags.
	flagConfig   = "config"
	flagSimulate = "simulate"
	flagDebug    = "debug"
	flagLogFile  = "log-file"
	flagEnvFile  = "env-file"

	simulatedConfigPath = "<simulated>"
)

//go:embed simulated.json
var simulatedConfig []byte

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type appState struct {
	logger        logging.Logger
	closeLog      func() error
	restoreStdLog func()
}

func newApp(stdout, stderr io.Writer) *cli.App {
	state := &appState{
		closeLog:      func() error { return nil },
		restoreStdLog: func() {},
	}
	return &cli.App{
		Name:      "avoider",
		Usage:     "drive forward, back off from obstacles",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load the rig configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagSimulate,
				Usage: "run against the built in simulated rig",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to the rotating log `FILE`",
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "load environment variables for config substitution from `FILE` if it exists",
			},
		},
		Before: func(c *cli.Context) error {
			if err := loadEnvFile(c.String(flagEnvFile)); err != nil {
				return err
			}
			state.logger = logging.NewBlankLogger("avoider")
			state.logger.AddAppender(logging.NewWriterAppender(stdout))
			state.logger.SetLevel(logging.INFO)
			if c.Bool(flagDebug) {
				state.logger.SetLevel(logging.DEBUG)
			}
			logging.ReplaceGlobal(state.logger)
			return nil
		},
		After: func(c *cli.Context) error {
			state.restoreStdLog()
			return state.closeLog()
		},
		Action: func(c *cli.Context) error {
			return runAction(c, state)
		},
		Commands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "read and validate the rig configuration, then exit",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, state)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%s %s\n", cfg.ConfigFilePath, color.GreenString("is valid"))
					fmt.Fprintln(c.App.Writer, cfg.Table())
					return nil
				},
			},
		},
	}
}

// loadEnvFile loads path into the environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return errors.Wrapf(godotenv.Load(path), "loading env file %s", path)
}

func loadConfig(c *cli.Context, state *appState) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch path := c.String(flagConfig); {
	case c.Bool(flagSimulate):
		cfg, err = config.FromReader(c.Context, simulatedConfigPath, bytes.NewReader(simulatedConfig), state.logger)
	case path == "":
		return nil, errors.New("a rig configuration is required: pass --config FILE or --simulate")
	default:
		cfg, err = config.Read(c.Context, path, state.logger)
	}
	if err != nil {
		return nil, err
	}
	if err := applyLogConfig(c, state, cfg.Log); err != nil {
		return nil, err
	}
	// periph host drivers report through the standard library logger
	state.restoreStdLog = zap.RedirectStdLog(state.logger.Sublogger("periph").AsZap().Desugar())
	return cfg, nil
}

// applyLogConfig layers the log section of the config under the command line flags.
func applyLogConfig(c *cli.Context, state *appState, logCfg config.Log) error {
	if logCfg.Level != "" && !c.Bool(flagDebug) {
		level, err := logging.LevelFromString(logCfg.Level)
		if err != nil {
			return err
		}
		state.logger.SetLevel(level)
	}

	filename := c.String(flagLogFile)
	if filename == "" {
		filename = logCfg.File
	}
	if filename == "" {
		return nil
	}
	appender := logging.NewFileAppender(logging.FileAppenderConfig{
		Filename:   filename,
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
	})
	state.logger.AddAppender(appender)
	state.closeLog = appender.Close
	state.logger.Debugw("logging to file", "file", filename)
	return nil
}

func runAction(c *cli.Context, state *appState) (err error) {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c, state)
	if err != nil {
		return err
	}
	logger := state.logger

	clk := clock.New()
	h, err := hub.New(ctx, cfg, clk, logger.Sublogger("hub"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, h.Close(context.Background()))
	}()

	loop, err := control.NewLoop(
		control.ConfigFromAvoidance(cfg.Avoidance),
		h.Left(),
		h.Right(),
		h.Sensor(),
		clk,
		logger.Sublogger("loop"),
	)
	if err != nil {
		return err
	}
	logger.Infow("rig ready", "config", cfg.ConfigFilePath, "rig", cfg.String())
	return loop.Run(ctx)
}
