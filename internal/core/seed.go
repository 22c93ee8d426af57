package core

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout of a seed document.
type SeedFile struct {
	Users []User `yaml:"users"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) ([]User, error) {
	var doc SeedFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	return doc.Users, nil
}

// LoadSeedFile reads and decodes the seed document at path.
func LoadSeedFile(path string) ([]User, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	return ParseSeed(data)
}
