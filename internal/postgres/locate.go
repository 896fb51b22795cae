package postgres

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Installation describes a usable PostgreSQL installation on this host.
type Installation struct {
	BinDir  string
	Version string // major version as found in the install path, may be empty
}

// requiredBinaries are the server tools the bootstrap invokes. The client
// tools (createdb, psql) are not needed; provisioning goes over the wire.
var requiredBinaries = []string{"initdb", "pg_ctl", "pg_isready"}

// installGlobs cover the common distro layouts: Debian/Ubuntu, RHEL/Fedora,
// and Homebrew on both macOS prefixes.
var installGlobs = []string{
	"/usr/lib/postgresql/*/bin",
	"/usr/pgsql-*/bin",
	"/opt/homebrew/opt/postgresql@*/bin",
	"/usr/local/opt/postgresql@*/bin",
}

// Find locates a PostgreSQL installation. Resolution order: the explicit
// binDir override, then PATH, then the known install layouts (newest major
// version wins).
func Find(binDir string) (*Installation, error) {
	if binDir != "" {
		if !hasBinaries(binDir) {
			return nil, fmt.Errorf("PG_BIN %s does not contain %s", binDir, strings.Join(requiredBinaries, ", "))
		}
		return &Installation{BinDir: binDir, Version: versionFromPath(binDir)}, nil
	}

	if path, err := exec.LookPath("pg_ctl"); err == nil {
		dir := filepath.Dir(path)
		if hasBinaries(dir) {
			return &Installation{BinDir: dir, Version: versionFromPath(dir)}, nil
		}
	}

	var candidates []string
	for _, pattern := range installGlobs {
		matches, _ := filepath.Glob(pattern)
		candidates = append(candidates, matches...)
	}

	if dir := newestCandidate(candidates); dir != "" {
		return &Installation{BinDir: dir, Version: versionFromPath(dir)}, nil
	}

	return nil, fmt.Errorf("no PostgreSQL installation found; install the server or set PG_BIN")
}

// Bin returns the absolute path of a server binary.
func (i *Installation) Bin(name string) string {
	return filepath.Join(i.BinDir, name)
}

// hasBinaries reports whether dir contains every required server binary.
func hasBinaries(dir string) bool {
	for _, name := range requiredBinaries {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// versionFromPath extracts the major version from an install path such as
// /usr/lib/postgresql/16/bin or /usr/pgsql-15/bin.
func versionFromPath(dir string) string {
	parent := filepath.Base(filepath.Dir(dir))
	parent = strings.TrimPrefix(parent, "pgsql-")
	parent = strings.TrimPrefix(parent, "postgresql@")
	if _, err := strconv.Atoi(parent); err == nil {
		return parent
	}
	return ""
}

// newestCandidate picks the highest-versioned directory that has all the
// required binaries.
func newestCandidate(dirs []string) string {
	usable := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if hasBinaries(dir) {
			usable = append(usable, dir)
		}
	}
	if len(usable) == 0 {
		return ""
	}

	sort.Slice(usable, func(i, j int) bool {
		vi, _ := strconv.Atoi(versionFromPath(usable[i]))
		vj, _ := strconv.Atoi(versionFromPath(usable[j]))
		return vi > vj
	})
	return usable[0]
}
