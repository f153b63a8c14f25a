package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"github.com/vk/detflow/internal/app"
	"github.com/vk/detflow/internal/config"
	"github.com/vk/detflow/internal/fsutil"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/registry"
)

// DefaultConfigFile is read when --config is not given. It may be absent.
const DefaultConfigFile = "detflow.yaml"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// New builds the root command. Command output, logs included, goes to outW.
// Extra modules are registered next to the built-in palette.
func New(outW io.Writer, modules ...registry.Module) *cli.Command {
	c := &commands{outW: outW, modules: modules}
	return &cli.Command{
		Name:      "detflow",
		Usage:     "Runs dataflow graphs over lazily loaded detector signals",
		Writer:    outW,
		ErrWriter: outW,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   DefaultConfigFile,
				Sources: cli.EnvVars("DETFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format. Options: 'text' or 'json'.",
			},
			&cli.IntFlag{
				Name:  "healthcheck-port",
				Usage: "Port for the HTTP health check server. 0 is disabled.",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run a graph file",
				ArgsUsage: "GRAPH",
				Action:    c.run,
			},
			{
				Name:   "nodes",
				Usage:  "List the available node types",
				Action: c.nodes,
			},
			{
				Name:      "fmt",
				Usage:     "Print graph files in canonical form",
				ArgsUsage: "GRAPH|DIR",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "write",
						Aliases: []string{"w"},
						Usage:   "Write the result back to the file instead of printing it",
					},
				},
				Action: c.format,
			},
		},
	}
}

type commands struct {
	outW    io.Writer
	modules []registry.Module
}

// loadConfig reads the config file and applies the flag overrides on top.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"), !cmd.IsSet("config"))
	if err != nil {
		return nil, usageError("%v", err)
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = strings.ToLower(cmd.String("log-level"))
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = strings.ToLower(cmd.String("log-format"))
	}
	if cmd.IsSet("healthcheck-port") {
		cfg.Health.Port = int(cmd.Int("healthcheck-port"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError("invalid configuration: %v", err)
	}
	return cfg, nil
}

func (c *commands) newApp(cmd *cli.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.NewApp(c.outW, cfg, c.modules...)
}

func graphArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", usageError("%s: expected exactly one GRAPH argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func (c *commands) run(ctx context.Context, cmd *cli.Command) error {
	path, err := graphArg(cmd)
	if err != nil {
		return err
	}
	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx, path)
}

func (c *commands) nodes(_ context.Context, cmd *cli.Command) error {
	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	for _, s := range a.Schemas() {
		fmt.Fprintf(c.outW, "%s\n", s.ID())
		if s.Description != "" {
			fmt.Fprintf(c.outW, "    %s\n", s.Description)
		}
		for _, line := range portLines(s) {
			fmt.Fprintf(c.outW, "    %s\n", line)
		}
	}
	return nil
}

func portLines(s *node.Schema) []string {
	var lines []string
	for _, p := range s.Inputs {
		lines = append(lines, fmt.Sprintf("in    %s: %s", p.Name, p.Type))
	}
	for _, p := range s.Outputs {
		lines = append(lines, fmt.Sprintf("out   %s: %s", p.Name, p.Type))
	}
	for _, k := range s.Constants {
		line := fmt.Sprintf("const %s: %s", k.Name, k.Type)
		if k.AllowExternal {
			line += " (external)"
		}
		lines = append(lines, line)
	}
	return lines
}

func (c *commands) format(ctx context.Context, cmd *cli.Command) error {
	path, err := graphArg(cmd)
	if err != nil {
		return err
	}
	files, err := fsutil.GraphFiles(path)
	if err != nil {
		return err
	}
	a, err := c.newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, file := range files {
		out, err := a.Format(ctx, file)
		if err != nil {
			return err
		}
		if cmd.Bool("write") {
			if err := os.WriteFile(file, out, 0o644); err != nil {
				return err
			}
			a.Logger().Info("Graph formatted.", "graph", file)
			continue
		}
		if len(files) > 1 {
			fmt.Fprintf(c.outW, "# %s\n", file)
		}
		if _, err := c.outW.Write(out); err != nil {
			return err
		}
	}
	return nil
}
