package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timelines/internal/core"
	"timelines/internal/infra/persistence/sqlite"
	"timelines/pkg/domain"
	"timelines/pkg/period"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

var phone = filepath.Join("testdata", "phone.yaml")

func TestReplayPrintsEntries(t *testing.T) {
	out, _, err := execute(t, "replay", phone)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"home [2008-01-01, 2008-01-31] number=444-5555",
		"home [2008-03-01, 2008-05-10] number=444-5555",
		"home [2008-05-11, 2008-06-03] number=999-0000",
		"home [2008-06-04, 2008-07-22] number=555-6666",
		"work [2008-01-01, 2008-01-31] number=222-3333",
		"work [2008-03-01, undefined] number=222-3333",
	}, lines(out))
}

func TestReplayPolicyFlagOverridesScenario(t *testing.T) {
	_, _, err := execute(t, "--policy", "perpetual", "replay", phone)
	require.Error(t, err, "perpetual timelines reject clear")

	_, _, err = execute(t, "--policy", "sometimes", "replay", phone)
	require.Error(t, err)
}

func TestTracingFlagSelectsExporter(t *testing.T) {
	_, stderr, err := execute(t, "--tracing", "json", "replay", phone)
	require.NoError(t, err)
	assert.Contains(t, stderr, `"span":"timelines.add"`)
	assert.Contains(t, stderr, `"span":"timelines.clear"`)

	_, stderr, err = execute(t, "--tracing", "none", "replay", phone)
	require.NoError(t, err)
	assert.NotContains(t, stderr, `"span":`)

	_, _, err = execute(t, "--tracing", "zipkin", "replay", phone)
	require.ErrorContains(t, err, "unknown exporter")
}

func TestGapsWithinBound(t *testing.T) {
	out, _, err := execute(t, "gaps", phone, "--key", "home", "--from", "2008-01-01", "--to", "2008-12-31")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"[2008-02-01, 2008-02-29]",
		"[2008-07-23, 2008-12-31]",
	}, lines(out))

	out, _, err = execute(t, "gaps", phone, "--key", "car", "--from", "2008-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"[2008-01-01, undefined]"}, lines(out))

	_, _, err = execute(t, "gaps", phone, "--key", "home", "--from", "2008-12-31", "--to", "2008-01-01")
	require.Error(t, err)
}

func TestAsOfEveryKey(t *testing.T) {
	out, _, err := execute(t, "asof", phone, "--date", "2008-04-01")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"home [2008-03-01, 2008-05-10] number=444-5555",
		"work [2008-03-01, undefined] number=222-3333",
	}, lines(out))

	out, _, err = execute(t, "asof", phone, "--date", "2008-02-15", "--key", "home")
	require.NoError(t, err)
	assert.Equal(t, "home none\n", out)

	_, _, err = execute(t, "asof", phone, "--date", "yesterday")
	require.ErrorIs(t, err, period.ErrParse)
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	cfg := fmt.Sprintf(`storage:
  driver: sqlite
  sqlite_path: %s
archive:
  driver: fs
  dir: %s
log:
  format: json
  level: debug
metrics: prometheus
`, dbPath, filepath.Join(dir, "archive"))
	path := filepath.Join(dir, "timelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dbPath
}

func seed(t *testing.T, dbPath string) {
	t.Helper()
	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = store.Close() }()
	svc := core.NewService(store)
	_, err = svc.Add(context.Background(), "bill",
		*domain.NewEntry("home", period.MustParse("2008-01-01", ""), map[string]string{"number": "444-5555"}))
	require.NoError(t, err)
}

func TestExportLatestRestore(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)
	seed(t, dbPath)

	out, stderr, err := execute(t, "--config", cfgPath, "export", "--subject", "bill")
	require.NoError(t, err)
	key := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(key, "snapshots/bill/"), key)
	assert.Contains(t, stderr, `"msg":"snapshot exported"`)
	assert.Contains(t, stderr, `"backend":"prometheus"`)

	out, _, err = execute(t, "--config", cfgPath, "latest", "--subject", "bill")
	require.NoError(t, err)
	assert.Equal(t, key, strings.TrimSpace(out))

	out, stderr, err = execute(t, "--config", cfgPath, "restore", "--subject", "bill")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("restored bill: 1 entries from %s\n", key), out)
	assert.Contains(t, stderr, `"msg":"audit"`)

	out, _, err = execute(t, "--config", cfgPath, "export", "--all")
	require.NoError(t, err)
	assert.Len(t, lines(out), 1)
}

func TestSnapshotCommandErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, _, err := execute(t, "--config", cfgPath, "export")
	require.Error(t, err)
	_, _, err = execute(t, "--config", cfgPath, "export", "--subject", "bill", "--all")
	require.Error(t, err)
	_, _, err = execute(t, "--config", cfgPath, "restore")
	require.Error(t, err)
	_, _, err = execute(t, "--config", cfgPath, "latest", "--subject", "nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "latest", "--subject", "bill")
	require.Error(t, err)
	_, _, err = execute(t, "--log-format", "xml", "replay", phone)
	require.Error(t, err)
}
