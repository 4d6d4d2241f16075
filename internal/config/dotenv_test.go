package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	return path
}

func TestLoadDotEnv_SetsUnsetVars(t *testing.T) {
	const key = "OUTPERFORMER_DOTENV_TEST_SET"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeEnvFile(t, key+"=from-file\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("%s = %q, want from-file", key, got)
	}
}

func TestLoadDotEnv_DoesNotOverrideEnvironment(t *testing.T) {
	const key = "OUTPERFORMER_DOTENV_TEST_KEEP"
	t.Setenv(key, "from-env")

	path := writeEnvFile(t, key+"=from-file\n")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := os.Getenv(key); got != "from-env" {
		t.Errorf("%s = %q, want from-env", key, got)
	}
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestLoadDotEnv_UsesEnvFileVariable(t *testing.T) {
	const key = "OUTPERFORMER_DOTENV_TEST_VIA_VAR"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	t.Setenv("ENV_FILE", writeEnvFile(t, key+"=via-env-file\n"))
	if err := LoadDotEnv(""); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := os.Getenv(key); got != "via-env-file" {
		t.Errorf("%s = %q, want via-env-file", key, got)
	}
}
