package cli_test

import (
	"testing"

	"github.com/calvinalkan/sqldoc/internal/cli"
)

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "check")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")

	// Should show valid global options
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--cwd")
	cli.AssertContains(t, stderr, "--config")
	cli.AssertContains(t, stderr, "--engine")
}

func Test_Usage_Lists_Commands_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	for _, cmd := range []string{"query", "create", "check", "shell", "print-config"} {
		cli.AssertContains(t, stdout, "  "+cmd)
	}
}

func Test_Usage_Shown_When_Help_Flag(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("--help")
	cli.AssertContains(t, stdout, "Usage: sqldoc")
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Command_Help_When_Help_Flag(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("query", "--help")

	cli.AssertContains(t, stdout, "Usage: sqldoc query")
	cli.AssertContains(t, stdout, "--write")
	cli.AssertContains(t, stdout, "--arg")
}

func Test_Unknown_Engine_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--engine", "postgres", "check", "x.db")

	cli.AssertContains(t, stderr, `unknown engine "postgres"`)
}
