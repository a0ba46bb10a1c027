package migrate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	gooseUp   = "-- +goose Up"
	gooseDown = "-- +goose Down"
)

// ValidateDir rejects migration sets goose would misapply: names without a
// timestamp version, repeated versions, and files whose Up section is empty
// or missing its Down section.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	files, err := sqlFiles(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	versions := make(map[string]string, len(names))
	for _, name := range names {
		m := migrationNameRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[m[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name
		if err := checkSections(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// checkSections requires an Up annotation with at least one statement line
// before it, followed by a Down annotation.
func checkSections(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	var sawUp, sawDown bool
	upStatements := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, gooseUp):
			if sawDown {
				return fmt.Errorf("migration %q has %q after %q", name, gooseUp, gooseDown)
			}
			sawUp = true
		case strings.HasPrefix(line, gooseDown):
			sawDown = true
		case sawUp && !sawDown && line != "" && !strings.HasPrefix(line, "--"):
			upStatements++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	switch {
	case !sawUp:
		return fmt.Errorf("migration %q missing %q", name, gooseUp)
	case !sawDown:
		return fmt.Errorf("migration %q missing %q", name, gooseDown)
	case upStatements == 0:
		return fmt.Errorf("migration %q has an empty Up section", name)
	}
	return nil
}
