package config

import (
	"errors"
	"fmt"
	"strconv"
)

// Config represents the persistent notevec configuration stored as
// config.toml in the .notevec/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Notes       NotesConfig       `toml:"notes"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Segmenter   SegmenterConfig   `toml:"segmenter"`
	Search      SearchConfig      `toml:"search"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig holds settings of the embedded sqlite-vec store.
type StorageConfig struct {
	DBLocation   string `toml:"db_location,omitempty"`
	ExtensionDir string `toml:"extension_dir,omitempty"`
}

// NotesConfig locates the notes being indexed.
type NotesConfig struct {
	Dir string `toml:"dir,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Target      string `toml:"target,omitempty"`
	Model       string `toml:"model,omitempty"`
	Dimensions  uint   `toml:"dimensions,omitempty"`
	MaxInFlight int    `toml:"max_in_flight,omitempty"`
	APIKey      string `toml:"api_key,omitempty"`
}

// SegmenterConfig selects how node content is split into spans.
type SegmenterConfig struct {
	Strategy string `toml:"strategy,omitempty"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	TopK int `toml:"top_k,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds index event publishing settings. Brokers is a
// comma separated list of host:port addresses.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.db_location":     stringKey(func(c *Config) *string { return &c.Storage.DBLocation }),
	"storage.extension_dir":   stringKey(func(c *Config) *string { return &c.Storage.ExtensionDir }),
	"notes.dir":               stringKey(func(c *Config) *string { return &c.Notes.Dir }),
	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"embedding.provider":      stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":        stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":         stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			if n == 0 {
				return errors.New("invalid value for embedding.dimensions: must be positive")
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"embedding.max_in_flight": intKey("embedding.max_in_flight", func(c *Config) *int { return &c.Embedding.MaxInFlight }),
	"embedding.api_key":       stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"segmenter.strategy":      stringKey(func(c *Config) *string { return &c.Segmenter.Strategy }),
	"search.top_k":            intKey("search.top_k", func(c *Config) *int { return &c.Search.TopK }),
	"api.listen":              stringKey(func(c *Config) *string { return &c.API.Listen }),
	"eventstream.provider":    stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":     stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":       stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}
