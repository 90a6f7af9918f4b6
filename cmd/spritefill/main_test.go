package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body><svg><use href="icons.svg#star"></use></svg><svg><use href="flags.svg#jp"></use></svg></body></html>`

func writeSite(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte(page), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "icons.svg"),
		[]byte(`<svg xmlns="http://www.w3.org/2000/svg"><symbol id="star"></symbol></svg>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flags.svg"),
		[]byte(`<svg xmlns="http://www.w3.org/2000/svg"><symbol id="jp"></symbol></svg>`), 0o644))

	return dir
}

func TestRun_Render(t *testing.T) {
	dir := writeSite(t)
	out := filepath.Join(dir, "out.html")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-force",
		"-base", "file://" + dir + "/page.html",
		"-deny", `address endsWith "flags.svg"`,
		"-o", out,
		"-report", "json",
		filepath.Join(dir, "page.html"),
	}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)

	rendered, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `<symbol id="star">`)
	assert.Contains(t, string(rendered), `<use href="#star">`)
	assert.Contains(t, string(rendered), `<use href="flags.svg#jp">`)
	assert.NotContains(t, string(rendered), `<symbol id="jp">`)

	assert.Contains(t, stderr.String(), `"original":"icons.svg#star"`)
	assert.Empty(t, stdout.String())
}

func TestRun_ResolvesNextToInputWithoutBase(t *testing.T) {
	dir := writeSite(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-force",
		"-report", "json",
		filepath.Join(dir, "page.html"),
	}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `<use href="#star">`)
	assert.Contains(t, stdout.String(), `<use href="#jp">`)
	assert.Contains(t, stdout.String(), `<symbol id="star">`)
	assert.Contains(t, stdout.String(), `<symbol id="jp">`)
	assert.Contains(t, stderr.String(), `"address":"file://`+filepath.ToSlash(dir)+`/icons.svg"`)
	assert.NotContains(t, stderr.String(), "failed to fetch")
}

func TestRun_EnvPrefix(t *testing.T) {
	dir := writeSite(t)
	t.Setenv("CLITEST_ALWAYS", "true")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-env-prefix", "CLITEST_",
		filepath.Join(dir, "page.html"),
	}, strings.NewReader(""), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `<use href="#star">`)
}

func TestRun_EnvOverride(t *testing.T) {
	dir := writeSite(t)
	envFile := filepath.Join(dir, "site.env")
	require.NoError(t, os.WriteFile(envFile, []byte("CLIOVR_ALWAYS=true\n"), 0o644))
	t.Setenv("CLIOVR_ALWAYS", "false")

	args := func(extra ...string) []string {
		return append(append([]string{"-env-prefix", "CLIOVR_", "-env-file", envFile}, extra...),
			filepath.Join(dir, "page.html"))
	}

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), args(), strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stdout.String(), `<use href="icons.svg#star">`)

	stdout.Reset()
	require.NoError(t, run(context.Background(), args("-env-override"), strings.NewReader(""), &stdout, &stderr))
	assert.Contains(t, stdout.String(), `<use href="#star">`)
}

func TestRun_Stdin(t *testing.T) {
	dir := writeSite(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-user-agent", "Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0)",
		"-base", "file://" + dir + "/page.html",
		"-report", "yaml",
		"-",
	}, strings.NewReader(page), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `<use href="#star">`)
	assert.Contains(t, stdout.String(), `<use href="#jp">`)
	assert.Contains(t, stderr.String(), "required: true")
}

func TestRun_NotRequired(t *testing.T) {
	dir := writeSite(t)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-base", "file://" + dir + "/page.html",
		"-",
	}, strings.NewReader(page), &stdout, &stderr)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), `<use href="icons.svg#star">`)
	assert.NotContains(t, stdout.String(), "<symbol")
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, nil, &stdout, &stderr))
	assert.Equal(t, "spritefill dev\n", stdout.String())
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no input", args: nil},
		{name: "bad report", args: []string{"-report", "xml", "page.html"}},
		{name: "missing input", args: []string{"does-not-exist.html"}},
		{name: "bad policy", args: []string{"-deny", "name ==", "-"}},
		{name: "unknown engine", args: []string{"-policy", "lua", "-"}},
		{name: "watch stdin", args: []string{"-watch", "-"}},
		{name: "missing config", args: []string{"-config", "does-not-exist.yaml", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, strings.NewReader(page), &stdout, &stderr)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spritefill.yaml")
	require.NoError(t, os.WriteFile(path, []byte("always: false\npolicy:\n  engine: cel\n  deny:\n    - name == \"load\"\n"), 0o644))

	cfg, err := loadConfig(&options{
		configPath: path,
		force:      true,
		deny:       []string{`name == "apply"`},
	})
	require.NoError(t, err)

	assert.True(t, cfg.Always)
	assert.Equal(t, "cel", cfg.Policy.Engine)
	assert.Equal(t, []string{`name == "load"`, `name == "apply"`}, cfg.Policy.Deny)
	assert.False(t, cfg.Watch.Enabled)
}
