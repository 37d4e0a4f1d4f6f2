package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		old, had := os.LookupEnv(key)
		k, v, wasSet := key, old, had
		t.Cleanup(func() {
			if wasSet {
				_ = os.Setenv(k, v)
			} else {
				_ = os.Unsetenv(k)
			}
		})
		_ = os.Unsetenv(key)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "foo", firstNonEmpty("", "foo", "bar"))
	require.Equal(t, "", firstNonEmpty())
}

func TestParseInt(t *testing.T) {
	n, err := parseInt("42")
	require.NoError(t, err)
	require.Equal(t, 42, n)

	_, err = parseInt("notanint")
	require.Error(t, err)
}

func TestParseBool(t *testing.T) {
	require.True(t, parseBool("true"))
	require.True(t, parseBool("1"))
	require.True(t, parseBool("yes"))
	require.False(t, parseBool("false"))
	require.False(t, parseBool(""))
}

func TestParseCommaSeparatedList(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, parseCommaSeparatedList("a, b ,c"))
	require.Nil(t, parseCommaSeparatedList(""))
}

func TestLoadRequiresWorkdir(t *testing.T) {
	chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY", "LLM_PROVIDER")
	_ = os.Setenv("OPENAI_API_KEY", "dummy")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresProvider(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY", "LLM_PROVIDER")
	_ = os.Setenv("WORKDIR", dir)

	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY", "LLM_PROVIDER", "OPENAI_MODEL")
	_ = os.Setenv("WORKDIR", dir)
	_ = os.Setenv("OPENAI_API_KEY", "dummy")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLMClient.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	require.Equal(t, "completions", cfg.OpenAI.API)
	require.Equal(t, 8, cfg.MaxSteps)
	require.Equal(t, "memory", cfg.Databases.Vector.Backend)
	require.Equal(t, "memory", cfg.Databases.Chat.Backend)
	require.True(t, cfg.EnableTools)
	require.Equal(t, dir, cfg.Workdir)
	require.Equal(t, []string{dir}, cfg.Sandbox.AllowedRoots)
	require.Equal(t, cfg.OpenAI, cfg.LLMClient.OpenAI)
}

func TestLoadInfersProviderFromAnthropicKey(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_LLM_API_KEY", "LLM_PROVIDER")
	_ = os.Setenv("WORKDIR", dir)
	_ = os.Setenv("ANTHROPIC_API_KEY", "sk-ant-dummy")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLMClient.Provider)
}

func TestLoadRejectsBlockBinariesWithPaths(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "BLOCK_BINARIES")
	_ = os.Setenv("WORKDIR", dir)
	_ = os.Setenv("OPENAI_API_KEY", "dummy")
	_ = os.Setenv("BLOCK_BINARIES", "rm,/usr/bin/curl")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadYAMLOverlayFillsGaps(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "LLM_PROVIDER", "MAX_STEPS")
	_ = os.Setenv("OPENAI_API_KEY", "dummy")

	yamlContent := "workdir: " + dir + "\nmaxSteps: 12\ndatabases:\n  vector:\n    backend: qdrant\n    dsn: http://localhost:6333\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, dir, cfg.Workdir)
	require.Equal(t, 12, cfg.MaxSteps)
	require.Equal(t, "qdrant", cfg.Databases.Vector.Backend)
	require.Equal(t, "http://localhost:6333", cfg.Databases.Vector.DSN)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t, "WORKDIR", "OPENAI_API_KEY", "LLM_PROVIDER", "MAX_STEPS")
	_ = os.Setenv("WORKDIR", dir)
	_ = os.Setenv("OPENAI_API_KEY", "dummy")
	_ = os.Setenv("MAX_STEPS", "3")

	yamlContent := "maxSteps: 12\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxSteps)
}
