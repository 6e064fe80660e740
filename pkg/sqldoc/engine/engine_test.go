package engine_test

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/sqldoc/pkg/sqldoc/engine"
)

func allEngines(t *testing.T) []engine.Engine {
	t.Helper()

	engines := make([]engine.Engine, 0, len(engine.Names()))

	for _, name := range engine.Names() {
		eng, err := engine.ByName(name)
		require.NoError(t, err)

		engines = append(engines, eng)
	}

	return engines
}

func openConn(t *testing.T, eng engine.Engine, path string, mode engine.Mode) engine.Conn {
	t.Helper()

	conn, err := eng.Open(t.Context(), path, mode)
	require.NoError(t, err, "open %s (%s)", path, mode)

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func Test_ByName_Returns_Default_When_Name_Empty(t *testing.T) {
	t.Parallel()

	eng, err := engine.ByName("")
	require.NoError(t, err)
	assert.Equal(t, engine.Default, eng.Name())
}

func Test_ByName_Returns_Error_When_Name_Unknown(t *testing.T) {
	t.Parallel()

	_, err := engine.ByName("postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite3")
	assert.Contains(t, err.Error(), "modernc")
}

func Test_Open_Fails_When_ReadOnly_And_File_Missing(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "missing.db")

			conn, err := eng.Open(t.Context(), path, engine.ReadOnly)
			if err == nil {
				// Some drivers defer the file open until first use.
				stmt, prepErr := conn.Prepare(t.Context(), "SELECT 1")
				if prepErr == nil {
					_, prepErr = stmt.Step(t.Context())
					_ = stmt.Finalize()
				}

				_ = conn.Close()
				err = prepErr
			}

			var engErr *engine.Error
			require.ErrorAs(t, err, &engErr)

			_, statErr := os.Stat(path)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "read-only open must not create the file")
		})
	}
}

func Test_Open_Creates_Empty_File_When_Mode_ReadWriteCreate(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "new.db")

			conn, err := eng.Open(t.Context(), path, engine.ReadWriteCreate)
			require.NoError(t, err)
			require.NoError(t, conn.Close())

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Zero(t, info.Size())
		})
	}
}

func Test_Open_Handles_Special_Characters_When_Path_Contains_Them(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "odd ?name#100%.db")

			conn, err := eng.Open(t.Context(), path, engine.ReadWriteCreate)
			require.NoError(t, err)
			require.NoError(t, conn.Close())

			_, err = os.Stat(path)
			require.NoError(t, err, "file should exist at the literal path")
		})
	}
}

func Test_Step_Reports_Storage_Classes_When_Selecting_Literals(t *testing.T) {
	t.Parallel()

	type column struct {
		Name  string
		Class engine.StorageClass
		Int   int64
		Float float64
		Text  string
		Blob  string
	}

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			stmt, err := conn.Prepare(t.Context(), "SELECT 7 AS i, 2.5 AS f, 'héllo' AS s, x'00ff10' AS b, NULL AS n")
			require.NoError(t, err)

			defer func() { _ = stmt.Finalize() }()

			row, err := stmt.Step(t.Context())
			require.NoError(t, err)
			require.True(t, row, "expected a row")

			got := make([]column, stmt.ColumnCount())
			for i := range got {
				got[i] = column{Name: stmt.ColumnName(i), Class: stmt.ColumnType(i)}

				switch got[i].Class {
				case engine.Integer:
					got[i].Int = stmt.ColumnInt64(i)
				case engine.Float:
					got[i].Float = stmt.ColumnDouble(i)
				case engine.Text:
					got[i].Text = string(stmt.ColumnText(i))
				case engine.Blob:
					got[i].Blob = hex.EncodeToString(stmt.ColumnBlob(i))
				}
			}

			want := []column{
				{Name: "i", Class: engine.Integer, Int: 7},
				{Name: "f", Class: engine.Float, Float: 2.5},
				{Name: "s", Class: engine.Text, Text: "héllo"},
				{Name: "b", Class: engine.Blob, Blob: "00ff10"},
				{Name: "n", Class: engine.Null},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("columns mismatch (-want +got):\n%s", diff)
			}

			row, err = stmt.Step(t.Context())
			require.NoError(t, err)
			assert.False(t, row, "expected completion after one row")
		})
	}
}

func Test_Bind_Returns_Range_Error_When_Index_Out_Of_Range(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			stmt, err := conn.Prepare(t.Context(), "SELECT ? AS x")
			require.NoError(t, err)

			defer func() { _ = stmt.Finalize() }()

			err = stmt.BindInt64(0, 1)

			var engErr *engine.Error
			require.ErrorAs(t, err, &engErr)
			assert.Equal(t, "bind", engErr.Op)
			assert.Equal(t, engine.CodeRange, engErr.Code)
		})
	}
}

func Test_Bind_Values_Round_Trip_When_Stepped(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			stmt, err := conn.Prepare(t.Context(), "SELECT ? AS a, ? AS b, ? AS c")
			require.NoError(t, err)

			defer func() { _ = stmt.Finalize() }()

			require.NoError(t, stmt.BindInt64(1, 42))
			require.NoError(t, stmt.BindDouble(2, 0.25))
			require.NoError(t, stmt.BindText(3, "text"))

			row, err := stmt.Step(t.Context())
			require.NoError(t, err)
			require.True(t, row)

			assert.Equal(t, int64(42), stmt.ColumnInt64(0))
			assert.InDelta(t, 0.25, stmt.ColumnDouble(1), 0)
			assert.Equal(t, "text", string(stmt.ColumnText(2)))
		})
	}
}

func Test_Step_Returns_ReadOnly_Error_When_Writing_Through_ReadOnly_Conn(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "t.db")

			create, err := eng.Open(t.Context(), path, engine.ReadWriteCreate)
			require.NoError(t, err)
			require.NoError(t, create.Close())

			conn := openConn(t, eng, path, engine.ReadOnly)

			stmt, err := conn.Prepare(t.Context(), "CREATE TABLE t (a integer)")
			if err != nil {
				var engErr *engine.Error
				require.ErrorAs(t, err, &engErr)

				return
			}

			defer func() { _ = stmt.Finalize() }()

			_, err = stmt.Step(t.Context())

			var engErr *engine.Error
			require.ErrorAs(t, err, &engErr)
			assert.Equal(t, "step", engErr.Op)
			assert.Equal(t, engine.CodeReadOnly, engErr.Code, "message: %s", engErr.Message)
		})
	}
}

func Test_Prepare_Returns_Error_Without_Handle_When_SQL_Invalid(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			for _, query := range []string{"SELEC 1", "SELECT * FROM missing_table"} {
				stmt, err := conn.Prepare(t.Context(), query)
				assert.Nil(t, stmt, "query %q", query)

				var engErr *engine.Error
				require.ErrorAs(t, err, &engErr, "query %q", query)
				assert.Equal(t, "prepare", engErr.Op)
				assert.NotEmpty(t, engErr.Message)
			}
		})
	}
}

func Test_Finalize_Is_Idempotent_When_Called_Twice(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			stmt, err := conn.Prepare(t.Context(), "SELECT 1")
			require.NoError(t, err)

			_, err = stmt.Step(t.Context())
			require.NoError(t, err)

			require.NoError(t, stmt.Finalize())
			require.NoError(t, stmt.Finalize())

			_, err = stmt.Step(t.Context())
			require.Error(t, err, "step after finalize must fail")
		})
	}
}

func Test_Open_Fails_When_Context_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	eng, err := engine.ByName("")
	require.NoError(t, err)

	_, err = eng.Open(ctx, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)
	require.ErrorIs(t, err, context.Canceled)
}

func Test_Prepare_Returns_No_Stmt_When_SQL_Holds_No_Statement(t *testing.T) {
	t.Parallel()

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			for _, query := range []string{"", "   ", ";", "-- note", "/* block */ ;\n-- trailing\n"} {
				stmt, err := conn.Prepare(t.Context(), query)
				require.NoError(t, err, "query %q", query)
				assert.Nil(t, stmt, "query %q", query)
			}
		})
	}
}

func Test_Step_Returns_Stored_Values_When_Column_Declared_As_Time_Or_Bool(t *testing.T) {
	t.Parallel()

	type column struct {
		Class engine.StorageClass
		Int   int64
		Text  string
	}

	for _, eng := range allEngines(t) {
		t.Run(eng.Name(), func(t *testing.T) {
			t.Parallel()

			conn := openConn(t, eng, filepath.Join(t.TempDir(), "t.db"), engine.ReadWriteCreate)

			for _, query := range []string{
				"CREATE TABLE t (d DATETIME, e DATE, f BOOLEAN, g TIMESTAMP, h datetime, i boolean)",
				"INSERT INTO t VALUES (1700000000, '2024-01-01', 5, 'not a time', '2024-01-01 10:00:00', 'yes')",
			} {
				stmt, err := conn.Prepare(t.Context(), query)
				require.NoError(t, err, query)

				_, err = stmt.Step(t.Context())
				require.NoError(t, err, query)
				require.NoError(t, stmt.Finalize())
			}

			stmt, err := conn.Prepare(t.Context(), "SELECT d, e, f, g, h, i FROM t")
			require.NoError(t, err)

			defer func() { _ = stmt.Finalize() }()

			row, err := stmt.Step(t.Context())
			require.NoError(t, err)
			require.True(t, row)

			got := make([]column, stmt.ColumnCount())
			for i := range got {
				got[i].Class = stmt.ColumnType(i)

				switch got[i].Class {
				case engine.Integer:
					got[i].Int = stmt.ColumnInt64(i)
				case engine.Text:
					got[i].Text = string(stmt.ColumnText(i))
				}
			}

			want := []column{
				{Class: engine.Integer, Int: 1700000000},
				{Class: engine.Text, Text: "2024-01-01"},
				{Class: engine.Integer, Int: 5},
				{Class: engine.Text, Text: "not a time"},
				{Class: engine.Text, Text: "2024-01-01 10:00:00"},
				{Class: engine.Text, Text: "yes"},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
