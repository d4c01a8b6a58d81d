package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/tradescript/pkg/config"
)

const (
	name        = "tradescript"
	description = "Run trading scripts against market data."
)

// CLI is the top-level command-line interface
type CLI struct {
	Config     string `default:"config.yaml" help:"Configuration file."                     short:"c" type:"path"`
	LogLevel   string `default:""            enum:",debug,info,warn,error" help:"Override the configured log level." placeholder:"LEVEL"`
	Profile    string `default:""            enum:",${profileModes}" help:"Write a profile of the command." placeholder:"MODE"`
	ProfileDir string `default:"."           help:"Profile output directory."               type:"path"`

	Serve    ServeCmd    `cmd:"" help:"Start the executor pool and HTTP API."`
	Run      RunCmd      `cmd:"" help:"Run a script once and print the result."`
	Check    CheckCmd    `cmd:"" help:"Report syntax errors in script files."`
	Tokens   TokensCmd   `cmd:"" help:"Print the tokens of a script."`
	AST      ASTCmd      `cmd:"" help:"Print the syntax tree of a script." name:"ast"`
	Builtins BuiltinsCmd `cmd:"" help:"List the enabled builtin functions."`

	out io.Writer
	err io.Writer
}

// Run parses args and executes the selected command. exit is called by
// kong for --help and usage errors.
func Run(ctx context.Context, stdout, stderr io.Writer, exit func(code int), args ...string) error {
	cli := CLI{out: stdout, err: stderr}

	parser, err := kong.New(&cli,
		kong.Name(name),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.Writers(stdout, stderr),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		kong.Vars{"profileModes": strings.Join(profileModes(), ",")},
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	defer startProfile(cli.Profile, cli.ProfileDir)()

	return ktx.Run(&cli)
}

// load reads the configuration and builds the console logger
func (c *CLI) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFrom(c.Config)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	return cfg, newLogger(c.err, level), nil
}

// newLogger writes human-readable log lines to w
func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// readSource reads a script file, or stdin for "-"
func readSource(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// parseParam converts a command-line parameter to a number or boolean when
// it looks like one
func parseParam(value string) interface{} {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
