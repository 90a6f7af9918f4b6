package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/spritefill/internal/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "svg use", cfg.Target)
	assert.Empty(t, cfg.Context)
	assert.Empty(t, cfg.Root)
	assert.True(t, cfg.CrossDomain)
	assert.Equal(t, "external-svg-polyfill", cfg.Namespace)
	assert.Equal(t, config.DefaultAgents, cfg.Agents)
	assert.False(t, cfg.Always)
	assert.Equal(t, 30*time.Second, cfg.Timeout.Duration())
	assert.Equal(t, int64(16<<20), cfg.MaxSize.Int64())
	assert.Equal(t, 16*time.Millisecond, cfg.FrameInterval.Duration())
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 10*time.Millisecond, cfg.Watch.Debounce.Duration())
	assert.Zero(t, cfg.Watch.Poll)
	assert.Equal(t, "expr", cfg.Policy.Engine)

	require.NoError(t, config.Validate(cfg))
}

func TestDefault_AgentsNotShared(t *testing.T) {
	cfg := config.Default()
	cfg.Agents[0] = "changed"

	assert.NotEqual(t, "changed", config.DefaultAgents[0])
}

func TestLoadBytes_YAML(t *testing.T) {
	data := `
target: "svg use.icon"
context: "main"
crossdomain: false
namespace: sprites
agents: ["(?i)legacy"]
always: true
baseURL: "https://example.com/app/"
timeout: 2s
maxSize: 1MiB
watch:
  enabled: false
policy:
  engine: cel
  deny:
    - 'type == "load"'
`
	cfg, err := config.LoadBytes([]byte(data), config.WithEnvPrefix("CFGTEST_YAML_"))
	require.NoError(t, err)

	assert.Equal(t, "svg use.icon", cfg.Target)
	assert.Equal(t, "main", cfg.Context)
	assert.False(t, cfg.CrossDomain)
	assert.Equal(t, "sprites", cfg.Namespace)
	assert.Equal(t, []string{"(?i)legacy"}, cfg.Agents)
	assert.True(t, cfg.Always)
	assert.Equal(t, "https://example.com/app/", cfg.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Timeout.Duration())
	assert.Equal(t, int64(1<<20), cfg.MaxSize.Int64())
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 10*time.Millisecond, cfg.Watch.Debounce.Duration())
	assert.Equal(t, "cel", cfg.Policy.Engine)
	assert.Equal(t, []string{`type == "load"`}, cfg.Policy.Deny)

	// untouched fields keep their defaults
	assert.Equal(t, 16*time.Millisecond, cfg.FrameInterval.Duration())
}

func TestLoadBytes_JSON(t *testing.T) {
	data := `{"target": "use", "crossdomain": false, "timeout": "750ms", "maxSize": "64KiB"}`

	cfg, err := config.LoadBytes([]byte(data), config.WithEnvPrefix("CFGTEST_JSON_"))
	require.NoError(t, err)

	assert.Equal(t, "use", cfg.Target)
	assert.False(t, cfg.CrossDomain)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout.Duration())
	assert.Equal(t, int64(64<<10), cfg.MaxSize.Int64())
	assert.Equal(t, "external-svg-polyfill", cfg.Namespace)
}

func TestLoadBytes_Empty(t *testing.T) {
	cfg, err := config.LoadBytes(nil, config.WithEnvPrefix("CFGTEST_EMPTY_"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadBytes_Malformed(t *testing.T) {
	_, err := config.LoadBytes([]byte("target: [unclosed"), config.WithEnvPrefix("CFGTEST_BAD_"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestLoadBytes_EnvOverrides(t *testing.T) {
	t.Setenv("CFGTEST_ENV_TARGET", "use.sprite")
	t.Setenv("CFGTEST_ENV_CROSSDOMAIN", "false")
	t.Setenv("CFGTEST_ENV_AGENTS", "(?i)one, (?i)two")
	t.Setenv("CFGTEST_ENV_TIMEOUT", "3s")
	t.Setenv("CFGTEST_ENV_MAX_SIZE", "2MB")
	t.Setenv("CFGTEST_ENV_WATCH", "false")
	t.Setenv("CFGTEST_ENV_WATCH_POLL", "100ms")
	t.Setenv("CFGTEST_ENV_POLICY_ENGINE", "js")

	cfg, err := config.LoadBytes([]byte("target: ignored\n"), config.WithEnvPrefix("CFGTEST_ENV_"))
	require.NoError(t, err)

	assert.Equal(t, "use.sprite", cfg.Target)
	assert.False(t, cfg.CrossDomain)
	assert.Equal(t, []string{"(?i)one", "(?i)two"}, cfg.Agents)
	assert.Equal(t, 3*time.Second, cfg.Timeout.Duration())
	assert.Equal(t, int64(2_000_000), cfg.MaxSize.Int64())
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Poll.Duration())
	assert.Equal(t, "js", cfg.Policy.Engine)
}

func TestLoadBytes_EnvInvalid(t *testing.T) {
	t.Setenv("CFGTEST_INVALID_TIMEOUT", "soon")

	_, err := config.LoadBytes(nil, config.WithEnvPrefix("CFGTEST_INVALID_"))
	require.Error(t, err)

	var fieldErr *config.FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "Timeout", fieldErr.Path)
	assert.Equal(t, "env", fieldErr.Tag)
	assert.Equal(t, "soon", fieldErr.Value)
}

func TestLoadBytes_Validation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty target", data: `target: ""`},
		{name: "empty namespace", data: `namespace: ""`},
		{name: "unknown policy engine", data: "policy:\n  engine: lua"},
		{name: "negative timeout", data: "timeout: -1s"},
		{name: "base url not absolute", data: "baseURL: not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadBytes([]byte(tt.data), config.WithEnvPrefix("CFGTEST_VALIDATE_"))
			require.Error(t, err)

			var validationErr *config.ValidationError
			assert.True(t, errors.As(err, &validationErr))
		})
	}
}

func TestLoad_Fs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/spritefill.yaml", []byte("namespace: mem\n"), 0o644))

	cfg, err := config.Load("/etc/spritefill.yaml", config.WithFs(fs), config.WithEnvPrefix("CFGTEST_FS_"))
	require.NoError(t, err)
	assert.Equal(t, "mem", cfg.Namespace)

	_, err = config.Load("/etc/missing.yaml", config.WithFs(fs))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := config.Load("", config.WithEnvPrefix("CFGTEST_NOPATH_"))
	require.NoError(t, err)
	assert.Equal(t, "svg use", cfg.Target)
}

func TestLoad_Dotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CFGTEST_DOTENV_NAMESPACE=from-dotenv\n"), 0o600))

	// registers cleanup for the variable godotenv is about to set
	t.Setenv("CFGTEST_DOTENV_NAMESPACE", "")

	cfg, err := config.LoadBytes(nil,
		config.WithEnvPrefix("CFGTEST_DOTENV_"),
		config.WithDotenv(envFile, filepath.Join(dir, ".env.local")),
		config.WithDotenvOverride(),
	)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Namespace)
}

func TestFieldError(t *testing.T) {
	err := &config.FieldError{Path: "Timeout", Tag: "env", Value: "soon", Err: errors.New("bad")}
	assert.Equal(t, "field 'Timeout' (tag 'env'): invalid value 'soon': bad", err.Error())
}
