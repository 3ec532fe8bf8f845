package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/i18n"
	"github.com/reoring/bimgraph/ifc"
	"github.com/reoring/bimgraph/internal/config"
	"github.com/reoring/bimgraph/schema"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// app is the state shared by every command of one invocation.
type app struct {
	out, errOut io.Writer

	configPath string
	schemaPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
	def    *schema.Definition
	style  styles
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr, style: plainStyles()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, a.style.err.Render("error:"), err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bimgraph",
		Short: "Inspect and convert BIM entity graphs",
		Long: `bimgraph loads entity records (JSON Lines, one record per line), validates
them against a schema definition and answers queries over the resulting graph.

Examples:
  bimgraph validate model.jsonl
  bimgraph hierarchy model.jsonl --depth 3
  bimgraph export model.jsonl --format yaml
  bimgraph store save model.jsonl --name v1`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup(cmd) },
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "configuration file (default: user config dir)")
	pf.StringVar(&a.schemaPath, "schema", "", "schema definition file (default: embedded IFC4 core)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		a.validateCmd(),
		a.inspectCmd(),
		a.queryCmd(),
		a.hierarchyCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.hashCmd(),
		a.jsonschemaCmd(),
		a.storeCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.schemaPath != "" {
		cfg.Schema = a.schemaPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: config.SlogLevel(cfg.LogLevel)}))
	a.style = newStyles(a.out, cfg.Output.Color)
	i18n.SetLanguage(cfg.Language)

	if cfg.Schema == "" {
		a.def = ifc.Schema()
	} else {
		def, err := schema.Load(cfg.Schema)
		if err != nil {
			return err
		}
		a.def = def
	}
	a.logger.Debug("configured",
		slog.String("schema", a.def.Name()),
		slog.String("command", cmd.Name()),
	)
	return nil
}

// loadGraph reads a JSON Lines record file.
func (a *app) loadGraph(ctx context.Context, path string, validate bool) (*bimgraph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bimgraph.Load(ctx, a.def, bimgraph.NewJSONRecordSource(f), bimgraph.LoadOpt{Logger: a.logger, Validate: validate})
}

// lookup resolves a global id or a "#<id>" token.
func lookup(g *bimgraph.Graph, key string) (*bimgraph.Entity, error) {
	return g.GetEntityByGlobalID(key)
}

// roots returns the entities that contain others but are contained by none.
func roots(g *bimgraph.Graph) ([]*bimgraph.Entity, error) {
	var out []*bimgraph.Entity
	for _, e := range g.GetAllEntities() {
		p, err := e.Parent()
		if err != nil {
			return nil, err
		}
		if p != nil {
			continue
		}
		cs, err := e.Children()
		if err != nil {
			return nil, err
		}
		if len(cs) > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}
