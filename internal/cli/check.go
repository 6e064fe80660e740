package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// CheckCmd returns the check command.
func CheckCmd(a *app) *Command {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "check <file>...",
		Short: "Verify files are SQLite databases",
		Long: `Verify that each file exists and is empty or starts with the SQLite header.

Prints "ok <path>" per valid file. Invalid files are reported as warnings and
make the exit code 1. No connection is opened.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execCheck(ctx, io, a, args)
		},
	}
}

func execCheck(ctx context.Context, io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errFileRequired
	}

	for _, file := range args {
		doc, err := a.manager.Document(ctx, a.resolvePath(file))
		if err != nil {
			io.Warn(err.Error())

			continue
		}

		io.Println("ok", doc.Path())
	}

	return nil
}
