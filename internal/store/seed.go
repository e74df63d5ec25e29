// ABOUTME: Seed file loading for catalog collections
// ABOUTME: Reads YAML or TOML and replaces the named documents wholesale

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedData is the on-disk shape of a seed file
type SeedData struct {
	Workflows     []Workflow     `yaml:"workflows" toml:"workflows"`
	Assistants    []Assistant    `yaml:"assistants" toml:"assistants"`
	Webhooks      []Webhook      `yaml:"webhooks" toml:"webhooks"`
	Companies     []Company      `yaml:"companies" toml:"companies"`
	MarkdownFiles []MarkdownFile `yaml:"markdown_files" toml:"markdown_files"`
	DocTypes      []string       `yaml:"doc_types" toml:"doc_types"`
}

// SeedResult counts documents written per collection
type SeedResult map[string]int

// LoadSeedFile parses a seed file; .toml files are TOML, everything else YAML
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var data SeedData
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(raw), &data); err != nil {
			return nil, fmt.Errorf("parsing seed file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parsing seed file: %w", err)
		}
	}
	return &data, nil
}

// Seed writes every entity in data. Entities without an id get a fresh UUID;
// entities with an id replace the existing document.
func Seed(ctx context.Context, s Store, data *SeedData) (SeedResult, error) {
	result := SeedResult{}

	put := func(collection, id string, v any) error {
		if id == "" {
			id = uuid.New().String()
		}
		if err := SaveEntity(ctx, s, collection, id, v); err != nil {
			return err
		}
		result[collection]++
		return nil
	}

	for _, w := range data.Workflows {
		if w.ChatflowID == "" {
			return result, fmt.Errorf("workflow %q: chatflow_id is required", w.Title)
		}
		id := w.ID
		w.ID = ""
		if err := put(CollectionWorkflows, id, w); err != nil {
			return result, err
		}
	}
	for _, a := range data.Assistants {
		id := a.ID
		a.ID = ""
		if err := put(CollectionAssistants, id, a); err != nil {
			return result, err
		}
	}
	for _, w := range data.Webhooks {
		id := w.ID
		w.ID = ""
		if err := put(CollectionWebhooks, id, w); err != nil {
			return result, err
		}
	}
	for _, c := range data.Companies {
		id := c.ID
		c.ID = ""
		if err := put(CollectionCompanies, id, c); err != nil {
			return result, err
		}
	}
	for _, m := range data.MarkdownFiles {
		id := m.ID
		m.ID = ""
		if err := put(CollectionMarkdownFiles, id, m); err != nil {
			return result, err
		}
	}
	if len(data.DocTypes) > 0 {
		if err := put(CollectionDocTypes, "defaultTypes", DocTypes{Types: data.DocTypes}); err != nil {
			return result, err
		}
	}

	return result, nil
}
