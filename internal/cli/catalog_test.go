package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureCatalog = "../catalog/testdata/crm.cue"

func TestCatalog_Text(t *testing.T) {
	out, err := executeCommand(t, "--no-color", "catalog", fixtureCatalog)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ "+fixtureCatalog)
	assert.Contains(t, out, "all tables: last_contacted_at\n")
	assert.Contains(t, out, "leads: ai_summary, enriched_at, last_contacted_at\n")
	assert.Contains(t, out, "activities: last_contacted_at, sentiment\n")
}

func TestCatalog_JSON(t *testing.T) {
	out, err := executeCommand(t, "--format", "json", "catalog", fixtureCatalog)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   CatalogResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"last_contacted_at"}, resp.Data.Volatile)
	assert.Equal(t, map[string][]string{
		"accounts":   {"last_contacted_at"},
		"activities": {"last_contacted_at", "sentiment"},
		"leads":      {"ai_summary", "enriched_at", "last_contacted_at"},
	}, resp.Data.Tables)
}

func TestCatalog_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(path, []byte("tables: leads: volatile: [42]\n"), 0o644))

	out, err := executeCommand(t, "--format", "json", "catalog", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCatalog, resp.Error.Code)
}

func TestCatalog_NotFound(t *testing.T) {
	_, err := executeCommand(t, "catalog", filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "catalog not found")
}

func TestTranslate_WithCatalog(t *testing.T) {
	abs, err := filepath.Abs(fixtureCatalog)
	require.NoError(t, err)
	cfg := writeSQLiteConfig(t, "catalog: "+abs+"\n")

	out, err := executeCommand(t, "--config", cfg, "translate", "SELECT id FROM leads")
	require.NoError(t, err)
	assert.Contains(t, out, `.select("id")`)

	bad := writeSQLiteConfig(t, "catalog: "+filepath.Join(t.TempDir(), "absent.cue")+"\n")
	_, err = executeCommand(t, "--config", bad, "translate", "SELECT id FROM leads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")
}
