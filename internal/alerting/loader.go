package alerting

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadCatalogFromFile loads and validates a rule catalog from a YAML file.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	return LoadCatalog(f)
}

// LoadCatalog loads and validates a rule catalog from a reader.
// Unknown keys are rejected so typos fail at startup.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var config RulesConfig
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	cat, err := NewCatalog(config.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid rule catalog: %w", err)
	}
	return cat, nil
}

// LoadCatalogFromBytes loads and validates a rule catalog from YAML bytes.
func LoadCatalogFromBytes(data []byte) (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(data))
}

// MarshalCatalog renders a catalog as YAML in the rules file format.
func MarshalCatalog(c *Catalog) ([]byte, error) {
	return yaml.Marshal(RulesConfig{Rules: c.Rules()})
}
