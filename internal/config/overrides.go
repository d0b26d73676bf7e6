package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// providersFile is the on-disk shape of the optional providers overrides
// file. Providers absent from the file keep their defaults.
type providersFile struct {
	Providers map[string]types.ProviderOverride `yaml:"providers"`
}

func loadProviderOverrides(path string) (map[string]types.ProviderOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return file.Providers, nil
}
