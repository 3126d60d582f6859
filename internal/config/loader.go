package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader reads a yaml config file, expands ${ENV_VAR} references, decodes
// strictly (unknown keys are errors) and validates the target struct's
// `validate` tags.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

func (l *Loader) Load(cfg any) error {
	yamlData, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	yamlString := os.ExpandEnv(string(yamlData))

	decoder := yaml.NewDecoder(strings.NewReader(yamlString))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", l.filePath, err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	return nil
}
