package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
)

var nonSnakeRe = regexp.MustCompile(`[^a-z0-9_]+`)

var mallSQLTemplate = template.Must(template.New("mall.sql-migration").Parse(`-- +goose Up
-- +goose StatementBegin
SELECT '{{.CamelName}} up';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT '{{.CamelName}} down';
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql through goose
// and returns its path. name is reduced to lowercase snake case so the file
// passes ValidateDir.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := nonSnakeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	before, err := sqlFiles(dir)
	if err != nil {
		return "", err
	}
	goose.SetSequential(false)
	if err := goose.CreateWithTemplate(nil, dir, mallSQLTemplate, safe, "sql"); err != nil {
		return "", err
	}
	after, err := sqlFiles(dir)
	if err != nil {
		return "", err
	}
	for name := range after {
		if _, existed := before[name]; !existed {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("created migration %q not found in %s", safe, dir)
}

func sqlFiles(dir string) (map[string]struct{}, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		out[filepath.Base(m)] = struct{}{}
	}
	return out, nil
}
