package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc"
)

var (
	errShellOneFile = errors.New("shell takes exactly one database file")
	errDotUsage     = errors.New("usage")
)

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	fs.Bool("create", false, "Create the file when missing")
	fs.BoolP("write", "w", false, "Start with writes enabled")
	fs.StringP("format", "f", "", "Output format: json|yaml [default: from config]")

	return &Command{
		Flags: fs,
		Usage: "shell [flags] <file>",
		Short: "Interactive statement shell",
		Long: `Open an interactive shell on one database file.

Statements may span lines and run when a line ends with ";". Statements are
read-only until ".write on". Dot commands:

  .write on|off     Allow or forbid writes
  .format json|yaml Set the output format
  .tables           List tables
  .help             Show this help
  .exit             Leave the shell

When stdin is not a terminal, statements are read from it line by line and
any failing statement or dot command makes the exit code 1.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShell(ctx, o, a, fs, args)
		},
	}
}

// lineReader is satisfied by *liner.State.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads lines from a non-interactive input without prompting.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

// shell is one interactive session.
type shell struct {
	o      *IO
	doc    *sqldoc.Document
	format string
	write  bool
	lines  lineReader

	// interactive shells print failures; scripted ones record them as
	// warnings so the command exits 1.
	interactive bool
}

func execShell(ctx context.Context, o *IO, a *app, fs *flag.FlagSet, args []string) error {
	if len(args) != 1 {
		return errShellOneFile
	}

	format, err := commandFormat(a, fs)
	if err != nil {
		return err
	}

	path := a.resolvePath(args[0])

	var doc *sqldoc.Document

	if create, _ := fs.GetBool("create"); create {
		doc, err = a.manager.NewDocument(ctx, path)
	} else {
		doc, err = a.manager.Document(ctx, path)
	}

	if err != nil {
		return err
	}

	write, _ := fs.GetBool("write")

	s := &shell{o: o, doc: doc, format: format, write: write}

	s.interactive = isTerminal(o.in)
	if s.interactive {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(completeDot)

		history := historyFile(a)
		if f, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}

		defer func() {
			if f, err := os.Create(history); err == nil {
				_, _ = state.WriteHistory(f)
				_ = f.Close()
			}
		}()

		s.lines = state

		o.Println("sqldoc shell on", doc.Path())
		o.Println(`Type ".help" for commands. Statements end with ";".`)
	} else {
		in := o.in
		if in == nil {
			in = strings.NewReader("")
		}

		s.lines = &scanReader{sc: bufio.NewScanner(in)}
	}

	defer func() { _ = s.lines.Close() }()

	return s.loop(ctx)
}

func (s *shell) loop(ctx context.Context) error {
	var pending strings.Builder

	for ctx.Err() == nil {
		prompt := "sqldoc> "
		if pending.Len() > 0 {
			prompt = "   ...> "
		}

		line, err := s.lines.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) && pending.Len() > 0 {
				pending.Reset()

				continue
			}

			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		trimmed := strings.TrimSpace(line)

		if pending.Len() == 0 {
			if trimmed == "" {
				continue
			}

			if strings.HasPrefix(trimmed, ".") {
				s.lines.AppendHistory(trimmed)

				if s.dot(ctx, trimmed) {
					return nil
				}

				continue
			}
		}

		pending.WriteString(line)
		pending.WriteByte('\n')

		stmt := strings.TrimSpace(pending.String())
		if !strings.HasSuffix(stmt, ";") {
			continue
		}

		pending.Reset()
		s.lines.AppendHistory(stmt)
		s.run(ctx, stmt)
	}

	return nil
}

// run executes one statement and prints the rows or the error.
func (s *shell) run(ctx context.Context, stmt string) {
	q := sqldoc.NewQuery(stmt)
	if s.write {
		q = sqldoc.NewMutableQuery(stmt)
	}

	records, err := s.doc.Execute(ctx, q)
	if err != nil {
		s.fail(err.Error())

		return
	}

	if len(records) == 0 {
		return
	}

	data, err := encode(s.format, records)
	if err != nil {
		s.fail(err.Error())

		return
	}

	s.o.Printf("%s", data)
}

// fail reports a failed statement or dot command. In a script the failure
// becomes a warning, which sets the exit code.
func (s *shell) fail(msg string) {
	if s.interactive {
		s.o.ErrPrintln("error:", msg)

		return
	}

	s.o.Warn(msg)
}

// dot handles a dot command. Returns true when the shell should exit.
func (s *shell) dot(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case ".exit", ".quit":
		return true
	case ".help":
		s.o.Println(dotHelp)
	case ".write":
		switch {
		case len(args) == 0:
			s.o.Println("write", onOff(s.write))
		case len(args) == 1 && (args[0] == "on" || args[0] == "off"):
			s.write = args[0] == "on"
		default:
			s.fail(errDotUsage.Error() + " .write on|off")
		}
	case ".format":
		switch {
		case len(args) == 0:
			s.o.Println("format", s.format)
		case len(args) == 1 && validateFormat(args[0]) == nil:
			s.format = args[0]
		default:
			s.fail(errDotUsage.Error() + " .format json|yaml")
		}
	case ".tables":
		records, err := s.doc.Execute(ctx, sqldoc.NewQuery(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"))
		if err != nil {
			s.fail(err.Error())

			return false
		}

		for _, rec := range records {
			s.o.Println(rec["name"].Str())
		}
	default:
		s.fail("unknown command: " + cmd + ` (type ".help" for commands)`)
	}

	return false
}

const dotHelp = `.write on|off     Allow or forbid writes
.format json|yaml Set the output format
.tables           List tables
.help             Show this help
.exit             Leave the shell`

var dotCommands = []string{".exit", ".format", ".help", ".quit", ".tables", ".write"}

func completeDot(line string) []string {
	var out []string

	for _, cmd := range dotCommands {
		if strings.HasPrefix(cmd, line) {
			out = append(out, cmd)
		}
	}

	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}

	return "off"
}

// isTerminal reports whether in is a character device, so liner can drive it.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok || !liner.TerminalSupported() {
		return false
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}

	return info.Mode()&os.ModeCharDevice != 0
}

// historyFile returns the path to the shell history file.
func historyFile(a *app) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(a.cfg.EffectiveCwd, ".sqldoc_history")
	}

	return filepath.Join(home, ".sqldoc_history")
}
