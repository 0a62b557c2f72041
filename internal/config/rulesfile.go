package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"icc.tech/pktbridge/internal/rules"
)

// rulesFile is the standalone rules document: a bare `rules:` list,
// reloadable at runtime without touching the main configuration.
type rulesFile struct {
	Rules []rules.Spec `yaml:"rules"`
}

// LoadRulesFile reads rule specs from a standalone YAML file.
func LoadRulesFile(path string) ([]rules.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var doc rulesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return doc.Rules, nil
}
