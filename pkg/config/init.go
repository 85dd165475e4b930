package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// InitializeFolder creates the settings directory with a default config, a dev
// environment and an example grammar. Existing files are left untouched.
func InitializeFolder(dir string) (bool, error) {
	created := false
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create %s folder: %w", dir, err)
		}
		created = true
	}

	for _, sub := range []string{"grammars", "environments", "results"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return false, fmt.Errorf("failed to create %s folder: %w", sub, err)
		}
	}

	files := map[string]string{
		"config.yaml":           defaultConfig,
		"environments/dev.yaml": defaultEnvironment,
		"grammars/pokeapi.yaml": exampleGrammar,
	}
	for name, content := range files {
		if err := writeIfMissing(filepath.Join(dir, name), content); err != nil {
			return false, err
		}
	}
	return created, nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

const defaultConfig = `# restseq configuration
target: pokeapi.co:443
tls: true
timeout: 30s
rate_limit: 0
workers: 1
strategy: dependency
environment: dev
results_dir: .restseq/results
# results_db: .restseq/results.db
log:
  level: info
  # file: .restseq/restseq.log
auth:
  - tag: authentication_token_tag
    type: static
    token: "{{env:API_TOKEN}}"
`

const defaultEnvironment = `# Development environment
# Variables are substituted into grammar static strings as {{NAME}}
HOST: pokeapi.co
`

const exampleGrammar = `name: pokeapi
requests:
  - id: /pokemon
    primitives:
      - {kind: static_string, value: "GET "}
      - {kind: basepath, value: /api/v2}
      - {kind: static_string, value: "/"}
      - {kind: static_string, value: pokemon}
      - {kind: static_string, value: " HTTP/1.1\r\n"}
      - {kind: static_string, value: "Accept: application/json\r\n"}
      - {kind: static_string, value: "Host: {{HOST}}\r\n"}
      - {kind: auth_token, tag: authentication_token_tag}
      - {kind: static_string, value: "\r\n"}
    produces:
      - {tag: first_pokemon, source: body, path: $.results.0.name}
  - id: /pokemon/{idOrName}
    primitives:
      - {kind: static_string, value: "GET "}
      - {kind: basepath, value: /api/v2}
      - {kind: static_string, value: "/"}
      - {kind: static_string, value: pokemon}
      - {kind: static_string, value: "/"}
      - {kind: fuzzable_int, name: idOrName, default: "1"}
      - {kind: static_string, value: " HTTP/1.1\r\n"}
      - {kind: static_string, value: "Accept: application/json\r\n"}
      - {kind: static_string, value: "Host: {{HOST}}\r\n"}
      - {kind: auth_token, tag: authentication_token_tag}
      - {kind: static_string, value: "\r\n"}
  - id: /pokemon/{first_pokemon}
    primitives:
      - {kind: static_string, value: "GET "}
      - {kind: basepath, value: /api/v2}
      - {kind: static_string, value: "/pokemon/"}
      - {kind: dynamic_object, tag: first_pokemon}
      - {kind: static_string, value: " HTTP/1.1\r\n"}
      - {kind: static_string, value: "Accept: application/json\r\n"}
      - {kind: static_string, value: "Host: {{HOST}}\r\n"}
      - {kind: auth_token, tag: authentication_token_tag}
      - {kind: static_string, value: "\r\n"}
`
