package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Proxy.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.Proxy.ListenAddr, DefaultListenAddr)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, ConfigFileName)); err != nil {
		t.Errorf("expected config file to be created: %v", err)
	}
}

func TestLoadConfigReadsExistingFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Proxy.ListenAddr = ":9999"
	cfg.Mirror.ProgramID = "custom-program"
	if err := cfg.Save(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Proxy.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", loaded.Proxy.ListenAddr)
	}
	if loaded.Mirror.ProgramID != "custom-program" {
		t.Errorf("ProgramID = %q, want custom-program", loaded.Mirror.ProgramID)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Mirror.ProgramID = "file-program"
	if err := cfg.Save(ConfigPath(tmpDir)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	t.Setenv("SOVEREIGN_CONTRACT_ADDRESS", "env-program")
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("SOL_USDC_RATE", "175.5")

	loaded, err := LoadConfig(tmpDir)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Mirror.ProgramID != "env-program" {
		t.Errorf("ProgramID = %q, want env-program (env must win over file)", loaded.Mirror.ProgramID)
	}
	if loaded.Proxy.OpenAIAPIKey != "sk-test-openai" {
		t.Errorf("OpenAIAPIKey = %q, want sk-test-openai", loaded.Proxy.OpenAIAPIKey)
	}
	if loaded.Mirror.InitialSOLRate != 175.5 {
		t.Errorf("InitialSOLRate = %v, want 175.5", loaded.Mirror.InitialSOLRate)
	}
}

func TestSaveNeverPersistsSecrets(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Proxy.OpenAIAPIKey = "sk-should-not-be-saved"
	path := ConfigPath(tmpDir)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := string(data); contains(got, "sk-should-not-be-saved") {
		t.Errorf("config file must not contain secret values, got: %s", got)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
