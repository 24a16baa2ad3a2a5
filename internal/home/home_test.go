package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaultsToUserHome(t *testing.T) {
	d, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	userHome, _ := os.UserHomeDir()
	want := filepath.Join(userHome, DefaultDirName)
	if d.Path() != want {
		t.Errorf("expected %q, got %q", want, d.Path())
	}
}

func TestEnsureExistsCreatesDataDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "offbook-home")
	d, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := d.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	info, err := os.Stat(d.DataPath())
	if err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("data path is not a directory")
	}
}

func TestPaths(t *testing.T) {
	d, _ := New("/tmp/offbook-test")

	if d.DBPath() != "/tmp/offbook-test/offbook.db" {
		t.Errorf("unexpected db path: %s", d.DBPath())
	}
	if d.ConfigPath() != "/tmp/offbook-test/config.yaml" {
		t.Errorf("unexpected config path: %s", d.ConfigPath())
	}
	if got := d.ScriptPath("job-1", "../evil/hamlet.pdf"); got != "/tmp/offbook-test/data/job-1/hamlet.pdf" {
		t.Errorf("script path did not sanitize filename: %s", got)
	}
}
