package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "mend", cfg.Name)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 6, cfg.Learning.MaxAttempts)
	assert.Equal(t, 2048, cfg.Learning.EmbeddingDim)
	assert.Equal(t, "data/mend.db", cfg.Store.DatabasePath)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Learning, cfg.Learning)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.yaml")
	body := `
llm:
  model: gemini-2.5-pro
  timeout: 30s
learning:
  max_attempts: 2
  parallelism: 8
store:
  database_path: /tmp/alt.db
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.Learning.MaxAttempts)
	assert.Equal(t, 8, cfg.Learning.Parallelism)
	assert.Equal(t, "/tmp/alt.db", cfg.Store.DatabasePath)
	// Untouched keys keep defaults.
	assert.Equal(t, 3, cfg.Learning.RetrievalK)
	assert.Equal(t, 30*time.Second, cfg.GetLLMTimeout())
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not, a, map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY sets the key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("MEND_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
	})

	t.Run("MEND_API_KEY wins over GEMINI_API_KEY", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("MEND_API_KEY", "mend-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "mend-key", cfg.LLM.APIKey)
	})

	t.Run("MEND_PARALLELISM must be a positive integer", func(t *testing.T) {
		cfg := DefaultConfig()

		t.Setenv("MEND_PARALLELISM", "12")
		cfg.applyEnvOverrides()
		assert.Equal(t, 12, cfg.Learning.Parallelism)

		t.Setenv("MEND_PARALLELISM", "zero")
		cfg.applyEnvOverrides()
		assert.Equal(t, 12, cfg.Learning.Parallelism)

		t.Setenv("MEND_PARALLELISM", "-3")
		cfg.applyEnvOverrides()
		assert.Equal(t, 12, cfg.Learning.Parallelism)
	})

	t.Run("MEND_DB overrides database path", func(t *testing.T) {
		t.Setenv("MEND_DB", "/var/lib/mend/state.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/var/lib/mend/state.db", cfg.Store.DatabasePath)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mend.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Model = "gemini-2.5-flash"
	cfg.Harness.Command = []string{"./harness.sh", "--strict"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", loaded.LLM.Model)
	assert.Equal(t, []string{"./harness.sh", "--strict"}, loaded.Harness.Command)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "key"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.APIKey = ""
	assert.Error(t, cfg.Validate())

	cfg.LLM.APIKey = "key"
	cfg.Learning.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}

func TestTimeoutFallbacks(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	assert.Equal(t, 10*time.Minute, cfg.GetHarnessTimeout())
}
