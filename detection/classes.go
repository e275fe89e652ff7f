package detection

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// classConfig is the YAML model config layout ("classes: [pill, ...]").
type classConfig struct {
	Classes []string `yaml:"classes"`
}

// defaultClasses is used when no class names file is configured.
var defaultClasses = []string{"pill"}

// LoadClasses reads class names from a YAML model config or, when the file
// does not parse as one, from a plain newline-separated names file. An
// empty path yields the single default class.
func LoadClasses(path string) ([]string, error) {
	if path == "" {
		return defaultClasses, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read class names")
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		var cfg classConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		if len(cfg.Classes) == 0 {
			return nil, errors.Errorf("no classes in %s", path)
		}
		return cfg.Classes, nil
	}

	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		return nil, errors.Errorf("no classes in %s", path)
	}
	return names, nil
}
