package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// CreateCmd returns the create command.
func CreateCmd(a *app) *Command {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "create <file>...",
		Short: "Create empty database files, prints paths",
		Long: `Create an empty database file at each path and print its absolute path.

An existing database file is left as it is. An existing file that is not a
database is an error and is never overwritten.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execCreate(ctx, io, a, args)
		},
	}
}

func execCreate(ctx context.Context, io *IO, a *app, args []string) error {
	if len(args) == 0 {
		return errFileRequired
	}

	for _, file := range args {
		doc, err := a.manager.NewDocument(ctx, a.resolvePath(file))
		if err != nil {
			return err
		}

		io.Println(doc.Path())
	}

	return nil
}
