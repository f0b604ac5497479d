package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Board describes which platforms a screen shows and in what order.
type Board struct {
	Platforms []PlatformConfig `yaml:"platforms" validate:"required,min=1,dive"`
}

type PlatformConfig struct {
	Key     string `yaml:"key" validate:"required"`
	Label   string `yaml:"label"`
	LabelEn string `yaml:"label_en"`
	// 0 uses DEPARTURE_LIMIT
	Limit int `yaml:"limit" validate:"gte=0,lte=50"`
}

// LoadBoard reads and validates a board layout file.
func LoadBoard(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board config: %w", err)
	}
	return ParseBoard(data)
}

// ParseBoard decodes and validates a YAML board layout.
func ParseBoard(data []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse board config: %w", err)
	}
	if err := validator.New().Struct(b); err != nil {
		return nil, fmt.Errorf("invalid board config: %w", err)
	}
	seen := make(map[string]bool, len(b.Platforms))
	for _, p := range b.Platforms {
		if seen[p.Key] {
			return nil, fmt.Errorf("invalid board config: duplicate platform %q", p.Key)
		}
		seen[p.Key] = true
	}
	return &b, nil
}
