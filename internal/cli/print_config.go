package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, a.cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("engine=" + cfg.Engine)
	io.Println("format=" + cfg.Format)
	io.Println("strict_decode=" + strconv.FormatBool(cfg.StrictDecode))
	io.Println("lock_files=" + strconv.FormatBool(cfg.LockFiles))
	io.Println("lock_timeout=" + cfg.LockTimeoutDur.String())
	io.Println("log_level=" + cfg.LogLevelParsed.String())

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
