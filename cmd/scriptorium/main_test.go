package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/scriptorium/config"
	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// testApp returns the app wired to in-memory streams. Exit errors are
// returned to the caller instead of terminating the test binary.
func testApp(stdin string) (*cli.App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	app := newApp()
	app.Reader = strings.NewReader(stdin)
	app.Writer = out
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, out
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptorium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeStaging(t *testing.T, entries ...*core.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, staging.Write(path, &staging.Document{
		Metadata: map[string]any{"source_dir": "pdfs"},
		Entries:  entries,
	}))
	return path
}

func findFlag(flags []cli.Flag, name string) cli.Flag {
	for _, f := range flags {
		for _, n := range f.Names() {
			if n == name {
				return f
			}
		}
	}
	return nil
}

func findCommand(app *cli.App, name string) *cli.Command {
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()
	for _, name := range []string{"check", "dedupe", "embed", "import", "purge-duplicates", "verify", "reembed", "search"} {
		assert.NotNil(t, findCommand(app, name), name)
	}
	for _, name := range []string{"log-level", "config", "metrics-textfile"} {
		assert.NotNil(t, findFlag(app.Flags, name), name)
	}
}

func TestDestructiveCommandsAskForConfirmation(t *testing.T) {
	app := newApp()
	for _, name := range []string{"import", "purge-duplicates", "reembed"} {
		cmd := findCommand(app, name)
		require.NotNil(t, cmd)
		assert.NotNil(t, findFlag(cmd.Flags, "yes"), name)
		assert.NotNil(t, findFlag(cmd.Flags, "dry-run"), name)
	}

	resume, ok := findFlag(findCommand(app, "import").Flags, "resume").(*cli.BoolFlag)
	require.True(t, ok)
	assert.False(t, resume.Value)
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	tests := []struct {
		level   string
		enabled slog.Level
		wantErr bool
	}{
		{level: "debug", enabled: slog.LevelDebug},
		{level: "INFO", enabled: slog.LevelInfo},
		{level: "warn", enabled: slog.LevelWarn},
		{level: "error", enabled: slog.LevelError},
		{level: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := setupLogger(&bytes.Buffer{}, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.True(t, slog.Default().Enabled(t.Context(), tt.enabled))
			assert.False(t, slog.Default().Enabled(t.Context(), tt.enabled-1))
		})
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" y \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			out := &bytes.Buffer{}
			assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), out, "Proceed?"))
			assert.Equal(t, "Proceed? (y/n): ", out.String())
		})
	}
}

func TestInvalidLogLevelFailsBeforeCommand(t *testing.T) {
	app, _ := testApp("")
	err := app.Run([]string{"scriptorium", "--log-level", "loud", "verify", "--expected", "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMissingConfigFile(t *testing.T) {
	app, _ := testApp("")
	err := app.Run([]string{"scriptorium", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "verify", "--expected", "0"})
	require.ErrorIs(t, err, config.ErrConfiguration)
}

func TestCheckCommand(t *testing.T) {
	input := writeStaging(t,
		&core.Entry{Title: "乾", Content: "乾为天，元亨利贞。", Book: "周易"},
		&core.Entry{Title: "乾", Content: "乾为天，元亨利贞。", Book: "周易"},
		&core.Entry{Title: "坤", Content: "坤为地，元亨。", Book: "周易"},
	)

	app, out := testApp("")
	require.NoError(t, app.Run([]string{"scriptorium", "check", "--input", input}))

	assert.Contains(t, out.String(), "Entries:          3")
	assert.Contains(t, out.String(), "Exact duplicates: 1")
	assert.Contains(t, out.String(), "周易")
}

func TestDedupeCommand(t *testing.T) {
	input := writeStaging(t,
		&core.Entry{Title: "a", Content: "天行健，君子以自强不息。"},
		&core.Entry{Title: "b", Content: "地势坤，君子以厚德载物。"},
		&core.Entry{Title: "c", Content: "天行健，君子以自强不息。"},
	)
	output := filepath.Join(t.TempDir(), "deduped.json")

	app, out := testApp("")
	require.NoError(t, app.Run([]string{"scriptorium", "dedupe", "--input", input, "--output", output}))
	assert.Contains(t, out.String(), "Kept 2 of 3 entries (1 duplicates)")

	doc, err := staging.Read(output)
	require.NoError(t, err)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "a", doc.Entries[0].Title)
	assert.Equal(t, "b", doc.Entries[1].Title)
	assert.Equal(t, "pdfs", doc.Metadata["source_dir"])
}

func TestDedupeCommand_RequiresInput(t *testing.T) {
	app, _ := testApp("")
	err := app.Run([]string{"scriptorium", "dedupe", "--output", filepath.Join(t.TempDir(), "out.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}

func TestVerifyCommand(t *testing.T) {
	cfgPath := writeConfig(t, fmt.Sprintf("database:\n  path: %s\n", filepath.Join(t.TempDir(), "db")))

	t.Run("empty store matches zero", func(t *testing.T) {
		app, out := testApp("")
		require.NoError(t, app.Run([]string{"scriptorium", "--config", cfgPath, "verify", "--expected", "0"}))
		assert.Contains(t, out.String(), "ok: 0 records")
	})

	t.Run("shortfall is an error", func(t *testing.T) {
		app, out := testApp("")
		err := app.Run([]string{"scriptorium", "--config", cfgPath, "verify", "--expected", "3"})
		require.Error(t, err)
		assert.Contains(t, out.String(), "short by 3")
	})
}

func TestImportCommand_MissingAPIKeyLeavesStoreUntouched(t *testing.T) {
	t.Setenv(config.DefaultAPIKeyEnv, "")
	dbPath := filepath.Join(t.TempDir(), "db")
	cfgPath := writeConfig(t, fmt.Sprintf("database:\n  path: %s\n", dbPath))
	input := writeStaging(t, &core.Entry{Title: "a", Content: "天行健"})

	app, _ := testApp("")
	err := app.Run([]string{"scriptorium", "--config", cfgPath, "import", "--input", input, "--dry-run"})
	require.ErrorIs(t, err, config.ErrConfiguration)

	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	app, _ := testApp("")
	err := app.Run([]string{"scriptorium", "search"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query")
}

func TestMetricsTextfile(t *testing.T) {
	input := writeStaging(t,
		&core.Entry{Content: "天行健"},
		&core.Entry{Content: "天行健"},
	)
	metricsPath := filepath.Join(t.TempDir(), "scriptorium.prom")

	app, _ := testApp("")
	require.NoError(t, app.Run([]string{"scriptorium", "--metrics-textfile", metricsPath,
		"dedupe", "--input", input, "--output", filepath.Join(t.TempDir(), "out.json")}))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scriptorium_duplicates_found_total 1")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "短", preview("短"))
	long := strings.Repeat("字", 61)
	assert.Equal(t, strings.Repeat("字", 60)+"...", preview(long))
}
