package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a config document from path. Supported formats:
// JSON (.json), YAML (.yaml, .yml).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("config: reading file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q: use .json, .yaml, or .yml", ext)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Validate checks a Config for internal consistency.
func Validate(cfg Config) error {
	if len(cfg.Functions) == 0 {
		return fmt.Errorf("at least one function is required")
	}
	if cfg.Store.Primary.Driver == "" {
		return fmt.Errorf("store.primary.driver is required")
	}
	switch cfg.Store.Primary.Driver {
	case "clickhouse", "postgres":
	default:
		return fmt.Errorf("unsupported store driver: %q", cfg.Store.Primary.Driver)
	}

	for name, fn := range cfg.Functions {
		if len(fn.Variants) == 0 {
			return fmt.Errorf("function %q: at least one variant is required", name)
		}
		switch fn.Type {
		case "chat", "json", "":
		default:
			return fmt.Errorf("function %q: unknown type %q", name, fn.Type)
		}
		for vname, v := range fn.Variants {
			if err := validateVariant(name, vname, v, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateVariant(fnName, vName string, v VariantConfig, cfg Config) error {
	switch v.Type {
	case "chat_completion", "":
		if len(v.Models) == 0 {
			return fmt.Errorf("function %q variant %q: at least one model is required", fnName, vName)
		}
	case "best_of_n", "mixture_of_n":
		if len(v.Candidates) == 0 {
			return fmt.Errorf("function %q variant %q: at least one candidate is required", fnName, vName)
		}
		if v.Judge == "" {
			return fmt.Errorf("function %q variant %q: judge model is required", fnName, vName)
		}
	case "dicl":
		if v.EmbeddingModel == "" {
			return fmt.Errorf("function %q variant %q: embedding_model is required", fnName, vName)
		}
		if len(v.Models) == 0 {
			return fmt.Errorf("function %q variant %q: at least one model is required", fnName, vName)
		}
	default:
		return fmt.Errorf("function %q variant %q: unknown type %q", fnName, vName, v.Type)
	}

	for _, m := range v.Models {
		if _, ok := cfg.Models[m]; !ok {
			return fmt.Errorf("function %q variant %q: references undefined model %q", fnName, vName, m)
		}
	}
	return nil
}
