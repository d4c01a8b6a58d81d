package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/arijanluiken/tradescript/internal/ast"
	"github.com/arijanluiken/tradescript/internal/builtins"
	"github.com/arijanluiken/tradescript/internal/engine"
	"github.com/arijanluiken/tradescript/internal/executor"
	"github.com/arijanluiken/tradescript/internal/lexer"
	"github.com/arijanluiken/tradescript/internal/parser"
	"github.com/arijanluiken/tradescript/internal/supervisor"
	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// ErrScriptFailed is returned when a script or check fails after its
// diagnostics were printed
var ErrScriptFailed = errors.New("script failed")

// ServeCmd starts the actor system and HTTP API
type ServeCmd struct {
	Port int `default:"0" help:"Override the configured API port."`
}

func (c *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.API.Port = c.Port
	}

	s := supervisor.New(cfg, logger)
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()

	logger.Info().Int("port", cfg.API.Port).Msg("Serving, press Ctrl+C to exit")
	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

// RunCmd runs one script
type RunCmd struct {
	File     string            `arg:"" optional:"" help:"Script file, or - for stdin."`
	Script   string            `help:"Run a saved script by name instead of a file." short:"n"`
	Symbol   string            `help:"Fetch bars for this symbol." short:"s"`
	Exchange string            `help:"Exchange to fetch bars from."`
	Interval string            `help:"Bar interval." short:"i"`
	Limit    int               `help:"Number of bars to fetch."`
	Bars     string            `help:"Read bars from a JSON file." type:"existingfile"`
	Param    map[string]string `help:"Script parameter as key=value." short:"p"`
	JSON     bool              `help:"Print the response as JSON." name:"json"`
}

func (c *RunCmd) Run(ctx context.Context, cli *CLI) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}

	components, err := supervisor.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	actors, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		return fmt.Errorf("failed to create actor engine: %w", err)
	}
	pool := executor.Spawn(actors, 1, components.Engine, components.DB, cfg.Script.Timeout+time.Minute, logger)
	defer pool.Stop()

	resp, err := pool.Execute(ctx, req)
	if err != nil {
		return err
	}

	if c.JSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		fmt.Fprintln(cli.out, string(data))
	} else {
		label := c.File
		if label == "" {
			label = c.Script
		}
		fmt.Fprint(cli.out, renderResponse(label, resp))
	}

	if !resp.OK() {
		return ErrScriptFailed
	}
	return nil
}

// request builds the execution request from the flags
func (c *RunCmd) request() (*engine.Request, error) {
	if (c.File == "") == (c.Script == "") {
		return nil, errors.New("run needs either a script file or --script")
	}

	req := &engine.Request{
		Script:   c.Script,
		Symbol:   c.Symbol,
		Exchange: c.Exchange,
		Interval: c.Interval,
		Limit:    c.Limit,
	}

	if c.File != "" {
		source, err := readSource(c.File)
		if err != nil {
			return nil, err
		}
		req.Source = source
	}

	if c.Bars != "" {
		data, err := os.ReadFile(c.Bars)
		if err != nil {
			return nil, fmt.Errorf("failed to read bars: %w", err)
		}
		var bars []*exchanges.Kline
		if err := json.Unmarshal(data, &bars); err != nil {
			return nil, fmt.Errorf("failed to parse bars: %w", err)
		}
		req.Bars = bars
	}

	if len(c.Param) > 0 {
		req.Params = make(map[string]interface{}, len(c.Param))
		for k, v := range c.Param {
			req.Params[k] = parseParam(v)
		}
	}
	return req, nil
}

// CheckCmd parses script files concurrently and reports every syntax error
type CheckCmd struct {
	Files []string `arg:"" help:"Script files to check." type:"existingfile"`
}

func (c *CheckCmd) Run(ctx context.Context, cli *CLI) error {
	results := make([][]engine.Diagnostic, len(c.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, file := range c.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			source, err := readSource(file)
			if err != nil {
				return err
			}
			if _, err := parser.ParseString(source); err != nil {
				results[i] = engine.Diagnose(err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for i, file := range c.Files {
		if len(results[i]) == 0 {
			fmt.Fprintf(cli.out, "%s: %s\n", file, okStyle.Render("ok"))
			continue
		}
		failed++
		for _, d := range results[i] {
			fmt.Fprintln(cli.out, renderDiagnostic(file, d))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files have errors", ErrScriptFailed, failed, len(c.Files))
	}
	return nil
}

// TokensCmd prints the token stream of a script
type TokensCmd struct {
	File string `arg:"" help:"Script file, or - for stdin."`
}

func (c *TokensCmd) Run(cli *CLI) error {
	source, err := readSource(c.File)
	if err != nil {
		return err
	}

	tokens, err := lexer.Tokenize(source)
	if err != nil {
		return printFailure(cli, c.File, err)
	}

	registry := builtins.NewRegistry(zerolog.Nop())
	for _, tok := range lexer.MarkBuiltins(tokens, registry.IsBuiltin) {
		fmt.Fprintln(cli.out, tok.String())
	}
	return nil
}

// ASTCmd prints the syntax tree of a script, one statement per line
type ASTCmd struct {
	File string `arg:"" help:"Script file, or - for stdin."`
}

func (c *ASTCmd) Run(cli *CLI) error {
	source, err := readSource(c.File)
	if err != nil {
		return err
	}

	program, err := parser.ParseString(source)
	if err != nil {
		return printFailure(cli, c.File, err)
	}

	for _, stmt := range program.Statements {
		fmt.Fprintln(cli.out, ast.String(stmt))
	}
	return nil
}

// BuiltinsCmd lists builtins, optionally fuzzy-filtered by name
type BuiltinsCmd struct {
	Filter string `arg:"" optional:"" help:"Show only builtins matching this pattern."`
}

func (c *BuiltinsCmd) Run(cli *CLI) error {
	cfg, logger, err := cli.load()
	if err != nil {
		return err
	}

	registry, err := builtins.FromConfig(cfg.Script, logger)
	if err != nil {
		return err
	}

	infos := registry.List()
	if c.Filter != "" {
		names := make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name
		}
		matches := fuzzy.Find(c.Filter, names)
		filtered := make([]builtins.Info, 0, len(matches))
		for _, m := range matches {
			filtered = append(filtered, infos[m.Index])
		}
		infos = filtered
	}

	byCategory := map[builtins.Category][]builtins.Info{}
	for _, info := range infos {
		byCategory[info.Category] = append(byCategory[info.Category], info)
	}
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)

	for _, category := range categories {
		fmt.Fprintln(cli.out, headerStyle.Render(category))
		for _, info := range byCategory[builtins.Category(category)] {
			fmt.Fprintf(cli.out, "  %-12s %s\n", info.Name, hintStyle.Render(info.Usage))
		}
	}
	if len(infos) == 0 {
		fmt.Fprintln(cli.out, hintStyle.Render("no builtins match "+strings.TrimSpace(c.Filter)))
	}
	return nil
}

func printFailure(cli *CLI, file string, err error) error {
	for _, d := range engine.Diagnose(err) {
		fmt.Fprintln(cli.out, renderDiagnostic(file, d))
	}
	return ErrScriptFailed
}
