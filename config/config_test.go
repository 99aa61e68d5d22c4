package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("RUN_TIMEOUT", "nonsense")
	t.Setenv("MAX_WORKERS", "4")

	cfg := LoadConfig()
	assert.Equal(t, cfg.RunTimeout, 2000*time.Millisecond)
	assert.Check(t, is.Equal(cfg.MaxWorkers, 4))
}

func TestLoadConfigWorkspaceRootIsDedicated(t *testing.T) {
	if _, set := os.LookupEnv("WORKSPACE_ROOT"); set {
		t.Skip("WORKSPACE_ROOT set in the environment")
	}
	cfg := LoadConfig()
	assert.Equal(t, cfg.WorkspaceRoot, filepath.Join(os.TempDir(), "arenaengine"))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RUN_TIMEOUT", "1500")
	t.Setenv("COMPILE_TIMEOUT", "3s")
	t.Setenv("CPP_FLAGS", "-O0  -g")
	t.Setenv("MAX_WORKERS", "9")
	t.Setenv("SANDBOX", "docker")

	cfg := LoadConfig()
	assert.Equal(t, cfg.RunTimeout, 1500*time.Millisecond)
	assert.Equal(t, cfg.CompileTimeout, 3*time.Second)
	assert.DeepEqual(t, cfg.CppFlags, []string{"-O0", "-g"})
	assert.Equal(t, cfg.MaxWorkers, 9)
	assert.Equal(t, cfg.Sandbox, "docker")
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("ARENA_TEST_INT", "twelve")
	assert.Equal(t, getEnvInt("ARENA_TEST_INT", 12), 12)
}
