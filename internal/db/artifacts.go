package db

import (
	"fmt"
	"os"
	"strings"
)

// WriteConnectionFile writes the connection URL to a file for other
// processes to pick up.
func WriteConnectionFile(path, url string) error {
	if err := os.WriteFile(path, []byte(url+"\n"), 0o644); err != nil {
		return fmt.Errorf("write connection file: %w", err)
	}
	return nil
}

// WriteEnvFile writes a shell-sourceable file exporting the connection
// details.
func WriteEnvFile(path, url, user, password, dbname string, port int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "export POSTGRES_URL=%q\n", url)
	fmt.Fprintf(&b, "export POSTGRES_USER=%q\n", user)
	fmt.Fprintf(&b, "export POSTGRES_PASSWORD=%q\n", password)
	fmt.Fprintf(&b, "export POSTGRES_DB=%q\n", dbname)
	fmt.Fprintf(&b, "export POSTGRES_PORT=%d\n", port)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}
