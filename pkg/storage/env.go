package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// varPattern matches {{VAR_NAME}} or {{env:VAR_NAME}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Environment holds the variables substituted into grammar files at load time.
type Environment map[string]string

// LoadEnvironment loads environment variables from a YAML file
func LoadEnvironment(filePath string) (Environment, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}

	env := Environment{}
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse environment YAML: %w", err)
	}

	// Values may themselves point at process environment variables
	for key, value := range env {
		expanded, _ := expand(value, nil)
		env[key] = expanded
	}

	return env, nil
}

// LoadNamedEnvironment loads <baseDir>/environments/<name>.yaml. An empty name
// yields an empty environment.
func LoadNamedEnvironment(baseDir, name string) (Environment, error) {
	if name == "" {
		return Environment{}, nil
	}
	return LoadEnvironment(filepath.Join(GetEnvironmentsDir(baseDir), name+".yaml"))
}

// ListEnvironments lists all environment files
func ListEnvironments(baseDir string) ([]string, error) {
	return listYAML(GetEnvironmentsDir(baseDir))
}

// Substitute replaces {{VAR}} placeholders with environment values and
// {{env:VAR}} with process environment variables. It returns the names of
// placeholders that could not be resolved; those are left in place.
func (e Environment) Substitute(text string) (string, []string) {
	if e == nil {
		e = Environment{}
	}
	return expand(text, e)
}

func expand(text string, env Environment) (string, []string) {
	var missing []string
	out := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		varName := strings.TrimSpace(match[2 : len(match)-2])

		if sysVar, ok := strings.CutPrefix(varName, "env:"); ok {
			if val, found := os.LookupEnv(sysVar); found {
				return val
			}
			missing = append(missing, varName)
			return match
		}

		if env == nil {
			return match
		}
		if val, ok := env[varName]; ok {
			return val
		}
		missing = append(missing, varName)
		return match
	})
	return out, missing
}

func listYAML(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml"))
		}
	}
	sort.Strings(names)
	return names, nil
}
