package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/booking"
	"gopkg.in/yaml.v3"
)

// dealershipsFile is the YAML layout of DEALERSHIPS_FILE:
//
//	locations:
//	  - key: downtown
//	    name: Downtown Toyota
//	    address: 123 Main St, Dallas, TX
type dealershipsFile struct {
	Locations []booking.Location `yaml:"locations"`
}

// LoadDealerships reads a dealership directory. Every location needs a key
// and a name, and keys must be unique.
func LoadDealerships(path string) (booking.Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dealerships file: %w", err)
	}
	return ParseDealerships(data)
}

func ParseDealerships(data []byte) (booking.Directory, error) {
	var file dealershipsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid dealerships file: %w", err)
	}
	if len(file.Locations) == 0 {
		return nil, fmt.Errorf("invalid dealerships file: no locations")
	}

	seen := make(map[string]bool, len(file.Locations))
	for i, loc := range file.Locations {
		key := strings.ToLower(strings.TrimSpace(loc.Key))
		if key == "" || strings.TrimSpace(loc.Name) == "" {
			return nil, fmt.Errorf("invalid dealerships file: location %d needs a key and a name", i+1)
		}
		if seen[key] {
			return nil, fmt.Errorf("invalid dealerships file: duplicate key %q", loc.Key)
		}
		seen[key] = true
	}
	return booking.NewDirectory(file.Locations...), nil
}
