package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// Catalogue is the station, webcam and API key inventory loaded from YAML.
type Catalogue struct {
	Stations []weather.Station `yaml:"stations" validate:"dive"`
	Webcams  []weather.Webcam  `yaml:"webcams" validate:"dive"`
	APIKeys  []weather.APIKey  `yaml:"apiKeys" validate:"dive"`
}

// Seeder accepts catalogue entries.
type Seeder interface {
	UpsertStation(ctx context.Context, st weather.Station) error
	UpsertWebcam(ctx context.Context, cam weather.Webcam) error
	UpsertAPIKey(ctx context.Context, key weather.APIKey) error
}

// LoadCatalogue reads and validates a catalogue file.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read file: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue decodes and validates catalogue YAML. Duplicate ids are rejected.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalogue: decode yaml: %w", err)
	}
	if err := validate.Struct(c); err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}

	seen := make(map[string]bool)
	for _, st := range c.Stations {
		if seen["station/"+st.ID] {
			return nil, fmt.Errorf("catalogue: duplicate station id %q", st.ID)
		}
		seen["station/"+st.ID] = true
	}
	for _, cam := range c.Webcams {
		if seen["webcam/"+cam.ID] {
			return nil, fmt.Errorf("catalogue: duplicate webcam id %q", cam.ID)
		}
		seen["webcam/"+cam.ID] = true
	}
	return &c, nil
}

// Seed upserts every catalogue entry into s.
func (c *Catalogue) Seed(ctx context.Context, s Seeder) error {
	for _, st := range c.Stations {
		if err := s.UpsertStation(ctx, st); err != nil {
			return fmt.Errorf("seed station %s: %w", st.ID, err)
		}
	}
	for _, cam := range c.Webcams {
		if err := s.UpsertWebcam(ctx, cam); err != nil {
			return fmt.Errorf("seed webcam %s: %w", cam.ID, err)
		}
	}
	for _, k := range c.APIKeys {
		if err := s.UpsertAPIKey(ctx, k); err != nil {
			return fmt.Errorf("seed api key %s: %w", k.Name, err)
		}
	}
	return nil
}
