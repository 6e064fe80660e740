package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/sqldoc/pkg/fs"
	"github.com/calvinalkan/sqldoc/pkg/sqldoc"
	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

// app is the state shared by all commands of one invocation.
type app struct {
	cfg     Config
	manager *sqldoc.Manager
	logger  *slog.Logger
}

// resolvePath makes path absolute relative to the effective working directory.
func (a *app) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.cfg.EffectiveCwd, path)
}

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. The first signal received cancels the running command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	o := NewIO(in, out, errOut)

	globals := flag.NewFlagSet("sqldoc", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	engineName := globals.String("engine", "", "Engine: "+strings.Join(engine.Names(), "|"))
	logLevel := globals.String("log-level", "", "Log level: debug|info|warn|error")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		printUsage(NewIO(nil, errOut, errOut), globals, nil)

		return 1
	}

	var overrides fileConfig

	if globals.Changed("engine") {
		overrides.Engine = engineName
	}

	if globals.Changed("log-level") {
		overrides.LogLevel = logLevel
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *workDir,
		ConfigPath:      *configPath,
		Overrides:       overrides,
		Env:             env,
	})
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	a, err := newApp(cfg, errOut)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	commands := []*Command{
		QueryCmd(a),
		CreateCmd(a),
		CheckCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(o, globals, commands)

		return 0
	}

	name := rest[0]
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd.Run(ctx, o, rest[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	o.ErrPrintln()

	printUsage(NewIO(nil, errOut, errOut), globals, commands)

	return 1
}

func newApp(cfg Config, errOut io.Writer) (*app, error) {
	eng, err := engine.ByName(cfg.Engine)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.LogLevelParsed}))

	manager := sqldoc.NewManager(sqldoc.Options{
		Engine:       eng,
		FS:           fs.NewReal(),
		Logger:       logger,
		StrictDecode: cfg.StrictDecode,
		LockFiles:    cfg.LockFiles,
		LockTimeout:  cfg.LockTimeoutDur,
	})

	return &app{cfg: cfg, manager: manager, logger: logger}, nil
}

func printUsage(o *IO, globals *flag.FlagSet, commands []*Command) {
	o.Println(`sqldoc - typed, serialized access to SQLite files

Usage: sqldoc [flags] <command> [args]

Global flags:`)

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	o.Printf("%s", buf.String())

	if len(commands) == 0 {
		return
	}

	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}

	o.Println()
	o.Println(`Run "sqldoc <command> --help" for command flags.`)
}
