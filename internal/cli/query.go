package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc"
)

var (
	errSQLRequired  = errors.New("sql is required")
	errFileRequired = errors.New("at least one database file is required")
	errEmptyValue   = errors.New("empty value not allowed")
)

// QueryCmd returns the query command.
func QueryCmd(a *app) *Command {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.BoolP("write", "w", false, "Open read-write so the statement may modify the file")
	fs.StringArrayP("arg", "a", nil, "Positional parameter (repeatable); prefix text: to force text")
	fs.StringP("format", "f", "", "Output format: json|yaml [default: from config]")
	fs.StringP("out", "o", "", "Write output atomically to `file` instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "query [flags] <sql> <file>...",
		Short: "Run one statement against database files",
		Long: `Run one statement against each database file and print the rows.

Statements are read-only unless --write is given. Parameters given with --arg
bind to ? placeholders in order; each value is an integer if it parses as
one, then a float, otherwise text.

With one file the output is an array of rows. With several files they are
queried in parallel and the output is an object keyed by file.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execQuery(ctx, io, a, fs, args)
		},
	}
}

func execQuery(ctx context.Context, io *IO, a *app, fs *flag.FlagSet, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errSQLRequired
	}

	if len(args) < 2 {
		return errFileRequired
	}

	format, err := commandFormat(a, fs)
	if err != nil {
		return err
	}

	out, _ := fs.GetString("out")
	if fs.Changed("out") && out == "" {
		return fmt.Errorf("%w: --out", errEmptyValue)
	}

	rawArgs, _ := fs.GetStringArray("arg")

	params := make([]sqldoc.Value, 0, len(rawArgs))
	for _, raw := range rawArgs {
		params = append(params, sqldoc.ParseValue(raw))
	}

	sql, files := args[0], args[1:]

	q := sqldoc.NewQuery(sql, params...)
	if write, _ := fs.GetBool("write"); write {
		q = sqldoc.NewMutableQuery(sql, params...)
	}

	results, err := queryFiles(ctx, a, q, files)
	if err != nil {
		return err
	}

	var v any = results[0]

	if len(files) > 1 {
		byFile := make(map[string][]sqldoc.Record, len(files))
		for i, file := range files {
			byFile[file] = results[i]
		}

		v = byFile
	}

	data, err := encode(format, v)
	if err != nil {
		return err
	}

	if out != "" {
		err = atomic.WriteFile(a.resolvePath(out), bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}

		return nil
	}

	io.Printf("%s", data)

	return nil
}

// queryFiles runs q against every file in parallel. The first failure
// cancels the rest.
func queryFiles(ctx context.Context, a *app, q sqldoc.Query, files []string) ([][]sqldoc.Record, error) {
	results := make([][]sqldoc.Record, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, file := range files {
		g.Go(func() error {
			doc, err := a.manager.Document(gctx, a.resolvePath(file))
			if err != nil {
				return err
			}

			records, err := doc.Execute(gctx, q)
			if err != nil {
				return err
			}

			results[i] = records

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return results, nil
}

// commandFormat returns --format when given, else the configured format.
func commandFormat(a *app, fs *flag.FlagSet) (string, error) {
	format, _ := fs.GetString("format")
	if !fs.Changed("format") {
		return a.cfg.Format, nil
	}

	err := validateFormat(format)
	if err != nil {
		return "", err
	}

	return format, nil
}
