// Package stack locates a project's directory and writes the .env file
// that hands the allocated ports and image versions to docker compose.
package stack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/shinji-kodama/devstack/internal/config"
	"github.com/shinji-kodama/devstack/internal/model"
)

// EnvFileName is the file compose reads variables from.
const EnvFileName = ".env"

// ComposeFileNames are the file names compose looks for, in its order of
// preference.
var ComposeFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// ErrNoComposeFile is returned when a project directory has no compose
// file.
var ErrNoComposeFile = errors.New("no compose file found")

// Project is a project directory under the projects root.
type Project struct {
	Name model.ProjectID
	Dir  string
}

// Resolve returns the project named id under projectsDir. The directory
// need not exist. A symlink in place of the project directory cannot lead
// outside projectsDir.
func Resolve(projectsDir string, id model.ProjectID) (*Project, error) {
	if err := model.ValidateProjectID(id); err != nil {
		return nil, err
	}
	dir, err := securejoin.SecureJoin(projectsDir, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project %s: %w", id, err)
	}
	return &Project{Name: id, Dir: dir}, nil
}

// Exists reports whether the project directory exists.
func (p *Project) Exists() bool {
	info, err := os.Stat(p.Dir)
	return err == nil && info.IsDir()
}

// EnsureDir creates the project directory if it is missing.
func (p *Project) EnsureDir() error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory %s: %w", p.Dir, err)
	}
	return nil
}

// ComposeFile returns the path of the project's compose file.
func (p *Project) ComposeFile() (string, error) {
	for _, name := range ComposeFileNames {
		path := filepath.Join(p.Dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s (looked for %s)", ErrNoComposeFile, p.Dir, strings.Join(ComposeFileNames, ", "))
}

// ExistsFunc returns a predicate that reports whether a project directory
// exists under projectsDir.
func ExistsFunc(projectsDir string) func(model.ProjectID) bool {
	return func(id model.ProjectID) bool {
		p, err := Resolve(projectsDir, id)
		if err != nil {
			return false
		}
		return p.Exists()
	}
}

// PortVar returns the .env variable for a service's port, e.g.
// "PHPMyAdmin" -> "PHPMYADMIN_PORT". Characters that cannot appear in a
// variable name become '_'.
func PortVar(service string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, service)
	return name + "_PORT"
}

// ComposeProjectName is the compose project name for id. Compose only
// accepts lower-case project names.
func ComposeProjectName(id model.ProjectID) string {
	return strings.ToLower(id.String())
}

// EnvVars returns the variables devstack manages in a project's .env.
// COMPOSE_PROJECT_NAME matches the name passed to compose -p.
func EnvVars(id model.ProjectID, ports model.ServicePortMap, versions config.Versions) map[string]string {
	vars := map[string]string{
		"COMPOSE_PROJECT_NAME": ComposeProjectName(id),
	}
	for service, port := range ports {
		vars[PortVar(service)] = fmt.Sprintf("%d", port)
	}
	if versions.WordPress != "" {
		vars["WORDPRESS_VERSION"] = versions.WordPress
	}
	if versions.PHP != "" {
		vars["PHP_VERSION"] = versions.PHP
	}
	if versions.MySQL != "" {
		vars["MYSQL_VERSION"] = versions.MySQL
	}
	return vars
}

// WriteEnv merges vars into the project's .env file. Variables already in
// the file and not in vars are kept; vars win on conflict. The file is
// written back sorted by key. Comments are not preserved.
func (p *Project) WriteEnv(vars map[string]string) error {
	envPath := filepath.Join(p.Dir, EnvFileName)

	merged, err := ReadEnv(envPath)
	if err != nil {
		return err
	}
	for k, v := range vars {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, merged[k])
	}

	if err := os.WriteFile(envPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", envPath, err)
	}
	return nil
}

// ReadEnv parses KEY=value lines from path. Blank lines and comments are
// skipped. A missing file reads as empty.
func ReadEnv(path string) (map[string]string, error) {
	vars := make(map[string]string)

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return vars, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(strings.TrimPrefix(key, "export "))] = value
	}
	return vars, nil
}
