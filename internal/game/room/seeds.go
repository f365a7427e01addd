package room

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlSeedFile is the top-level YAML structure of the room seed file.
type yamlSeedFile struct {
	Rooms []Seed `yaml:"rooms"`
}

// Seed describes a room that exists from startup and is never auto-removed.
type Seed struct {
	Name string `yaml:"name"`
}

// LoadSeedsFromFile reads the room seed file at path.
//
// Precondition: path must point to a YAML file with a top-level "rooms" list.
// Postcondition: Returns the seeds in file order or a non-nil error.
func LoadSeedsFromFile(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading room seeds %s: %w", path, err)
	}
	return LoadSeedsFromBytes(data)
}

// LoadSeedsFromBytes parses and validates room seeds.
//
// Postcondition: Every seed has a valid, unique name.
func LoadSeedsFromBytes(data []byte) ([]Seed, error) {
	var file yamlSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing room seeds: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(file.Rooms))
	out := make([]Seed, 0, len(file.Rooms))
	for i, s := range file.Rooms {
		name, err := NormalizeName(s.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("rooms[%d]: %w", i, err))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("rooms[%d]: duplicate name %q", i, name))
			continue
		}
		seen[name] = true
		out = append(out, Seed{Name: name})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
