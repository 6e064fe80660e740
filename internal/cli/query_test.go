package cli_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/sqldoc/internal/cli"
)

// newDB creates name in the test directory with one table t(a, b).
func newDB(t *testing.T, c *cli.CLI, name string) {
	t.Helper()

	c.MustRun("create", name)
	c.MustRun("query", "--write", "CREATE TABLE t (a integer PRIMARY KEY, b text)", name)
}

func Test_Query_Prints_JSON_Rows_When_One_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "app.db")

	c.MustRun("query", "-w", "-a", "1", "-a", "one", "INSERT INTO t (a, b) VALUES (?, ?)", "app.db")
	c.MustRun("query", "-w", "--arg=2", "--arg=text:2", "INSERT INTO t (a, b) VALUES (?, ?)", "app.db")

	stdout := c.MustRun("query", "SELECT a, b FROM t ORDER BY a", "app.db")

	var got []map[string]any

	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	want := []map[string]any{
		{"a": float64(1), "b": "one"},
		{"a": float64(2), "b": "2"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func Test_Query_Prints_Empty_Array_When_No_Rows(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "app.db")

	stdout := c.MustRun("query", "SELECT * FROM t", "app.db")
	if stdout != "[]" {
		t.Fatalf("stdout=%q, want=%q", stdout, "[]")
	}
}

func Test_Query_Prints_Object_Keyed_By_File_When_Several_Files(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "a.db")
	newDB(t, c, "b.db")

	c.MustRun("query", "-w", "INSERT INTO t (a, b) VALUES (1, 'from a')", "a.db")
	c.MustRun("query", "-w", "INSERT INTO t (a, b) VALUES (1, 'from b')", "b.db")

	stdout := c.MustRun("query", "--format", "yaml", "SELECT b FROM t", "a.db", "b.db")

	want := "a.db:\n    - b: from a\nb.db:\n    - b: from b"
	if stdout != want {
		t.Fatalf("stdout=%q, want=%q", stdout, want)
	}
}

func Test_Query_Fails_When_ReadOnly_Statement_Writes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "app.db")

	stderr := c.MustFail("query", "INSERT INTO t (a, b) VALUES (1, 'x')", "app.db")
	cli.AssertContains(t, stderr, "engine error")
	cli.AssertContains(t, stderr, "readonly")

	stdout := c.MustRun("query", "SELECT count(*) AS n FROM t", "app.db")
	cli.AssertContains(t, stdout, `"n": 0`)
}

func Test_Query_Fails_When_File_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "a.db")

	stderr := c.MustFail("query", "SELECT 1", "a.db", "missing.db")
	cli.AssertContains(t, stderr, "file not found")
	cli.AssertContains(t, stderr, c.Path("missing.db"))
}

func Test_Query_Fails_When_Args_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	cli.AssertContains(t, c.MustFail("query"), "sql is required")
	cli.AssertContains(t, c.MustFail("query", "SELECT 1"), "at least one database file")
	cli.AssertContains(t, c.MustFail("query", "--format", "xml", "SELECT 1", "x.db"), "invalid format")
}

func Test_Query_Fails_When_Syntax_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "app.db")

	stderr := c.MustFail("query", "SELEC 1", "app.db")
	cli.AssertContains(t, stderr, "statement error")
	cli.AssertContains(t, stderr, "syntax error")
}

func Test_Query_Writes_Output_File_When_Out_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	newDB(t, c, "app.db")

	stdout := c.MustRun("query", "--out", "rows.json", "SELECT 1 AS one", "app.db")
	if stdout != "" {
		t.Fatalf("stdout=%q, want empty", stdout)
	}

	got := c.ReadFile("rows.json")
	want := "[\n  {\n    \"one\": 1\n  }\n]\n"

	if got != want {
		t.Fatalf("rows.json=%q, want=%q", got, want)
	}
}

func Test_Query_Uses_Engine_From_Flag_When_Modernc(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--engine", "modernc", "create", "app.db")

	stdout := c.MustRun("--engine", "modernc", "query", "--arg", "2.5", "SELECT ? AS x, x'ff' AS b", "app.db")
	cli.AssertContains(t, stdout, `"x": 2.5`)
	cli.AssertContains(t, stdout, `"b": "/w=="`)
}
