package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetConfigPath(); got != "/etc/upll/upll.yaml" {
		t.Errorf("GetConfigPath() default = %q, want %q", got, "/etc/upll/upll.yaml")
	}
	t.Setenv("USER", "carol")
	if got := s.GetUser(); got != "carol" {
		t.Errorf("GetUser() = %q, want %q", got, "carol")
	}
}

func TestSettings_Set(t *testing.T) {
	s := &Settings{}

	tests := []struct {
		name, value string
		wantErr     bool
	}{
		{"config_path", "/tmp/upll.yaml", false},
		{"user", "alice", false},
		{"output", "json", false},
		{"output", "xml", true},
		{"color", "on", true},
	}
	for _, tt := range tests {
		err := s.Set(tt.name, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Set(%q, %q) error = %v, wantErr %v", tt.name, tt.value, err, tt.wantErr)
		}
	}
	if s.GetConfigPath() != "/tmp/upll.yaml" || s.GetUser() != "alice" || s.Output != "json" {
		t.Errorf("settings = %+v", s)
	}

	s.Clear()
	if s.ConfigPath != "" || s.User != "" || s.Output != "" {
		t.Error("Clear() should reset all fields to empty")
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s := &Settings{ConfigPath: "/srv/upll.yaml", User: "bob"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if *loaded != *s {
		t.Errorf("loaded %+v, want %+v", loaded, s)
	}
}

func TestSettings_LoadMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadFrom(filepath.Join(dir, "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom(missing) error = %v", err)
	}
	if *s != (Settings{}) {
		t.Errorf("missing file should give empty settings, got %+v", s)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(bad); err == nil {
		t.Error("LoadFrom(invalid) should fail")
	}
}
