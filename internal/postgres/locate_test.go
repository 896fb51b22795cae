package postgres

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeInstall creates a bin directory populated with the required server
// binaries under root/<layout>.
func fakeInstall(t *testing.T, root string, layout ...string) string {
	t.Helper()

	dir := filepath.Join(append([]string{root}, layout...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create fake install: %v", err)
	}
	for _, name := range requiredBinaries {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatalf("failed to create fake binary %s: %v", name, err)
		}
	}
	return dir
}

func TestFindWithOverride(t *testing.T) {
	dir := fakeInstall(t, t.TempDir(), "postgresql", "16", "bin")

	install, err := Find(dir)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if install.BinDir != dir {
		t.Errorf("expected bin dir %s, got %s", dir, install.BinDir)
	}
	if install.Version != "16" {
		t.Errorf("expected version 16, got %q", install.Version)
	}
}

func TestFindWithOverrideMissingBinaries(t *testing.T) {
	dir := t.TempDir()

	if _, err := Find(dir); err == nil {
		t.Error("expected error for a bin dir without server binaries")
	}
}

func TestBinJoinsPath(t *testing.T) {
	install := &Installation{BinDir: "/usr/lib/postgresql/16/bin"}
	if got := install.Bin("pg_ctl"); got != "/usr/lib/postgresql/16/bin/pg_ctl" {
		t.Errorf("unexpected binary path: %s", got)
	}
}

func TestVersionFromPath(t *testing.T) {
	cases := map[string]string{
		"/usr/lib/postgresql/16/bin":          "16",
		"/usr/pgsql-15/bin":                   "15",
		"/opt/homebrew/opt/postgresql@17/bin": "17",
		"/usr/local/bin":                      "",
	}
	for dir, want := range cases {
		if got := versionFromPath(dir); got != want {
			t.Errorf("versionFromPath(%s) = %q, want %q", dir, got, want)
		}
	}
}

func TestNewestCandidatePrefersHighestVersion(t *testing.T) {
	root := t.TempDir()
	fakeInstall(t, root, "postgresql", "14", "bin")
	newest := fakeInstall(t, root, "postgresql", "16", "bin")
	fakeInstall(t, root, "postgresql", "15", "bin")

	dirs, err := filepath.Glob(filepath.Join(root, "postgresql", "*", "bin"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}

	if got := newestCandidate(dirs); got != newest {
		t.Errorf("expected %s, got %s", newest, got)
	}
}

func TestNewestCandidateSkipsIncompleteInstalls(t *testing.T) {
	root := t.TempDir()
	complete := fakeInstall(t, root, "postgresql", "14", "bin")

	// Higher version but missing binaries.
	broken := filepath.Join(root, "postgresql", "16", "bin")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	dirs, _ := filepath.Glob(filepath.Join(root, "postgresql", "*", "bin"))
	if got := newestCandidate(dirs); got != complete {
		t.Errorf("expected %s, got %s", complete, got)
	}
}
