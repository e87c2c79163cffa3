package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --notes-dir
// on "notevec update", "notevec watch" and "notevec serve").
type Flag struct {
	// Name is the long flag name (e.g. "notes-dir").
	Name string

	// Shorthand is the one-letter short flag (e.g. "n"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "notes.dir").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddIntFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagNotesDir         = "notes-dir"
	FlagDBLocation       = "db"
	FlagExtensionDir     = "extension-dir"
	FlagVectorStoreProv  = "vector-store-provider"
	FlagVectorStoreTgt   = "vector-store-target"
	FlagVectorStoreColl  = "vector-store-collection"
	FlagEmbeddingProv    = "embedding-provider"
	FlagEmbeddingTgt     = "embedding-target"
	FlagEmbeddingModel   = "embedding-model"
	FlagEmbeddingDims    = "embedding-dimensions"
	FlagEmbeddingInFlt   = "embedding-max-in-flight"
	FlagEmbeddingAPIKey  = "embedding-api-key"
	FlagSegmenter        = "segmenter"
	FlagTopK             = "top-k"
	FlagAPIListen        = "listen"
	FlagEventStreamProv  = "eventstream-provider"
	FlagEventStreamBrkrs = "eventstream-brokers"
	FlagEventStreamTopic = "eventstream-topic"
)

// Flags is the registry shared by every notevec command.
var Flags = FlagSet{
	FlagNotesDir:         {Name: "notes-dir", Shorthand: "n", ViperKey: "notes.dir", Description: "Directory of org and markdown notes"},
	FlagDBLocation:       {Name: "db", ViperKey: "storage.db_location", Description: "Path to the sqlite-vec database (default: <config dir>/notevec.sqlite)"},
	FlagExtensionDir:     {Name: "extension-dir", ViperKey: "storage.extension_dir", Description: "Directory holding a vec0 extension to load instead of the bundled one"},
	FlagVectorStoreProv:  {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite, postgres, qdrant, chroma, memory)"},
	FlagVectorStoreTgt:   {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store address for server backed providers"},
	FlagVectorStoreColl:  {Name: "vector-store-collection", ViperKey: "vector_store.collection", Description: "Collection name for qdrant and chroma"},
	FlagEmbeddingProv:    {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai)"},
	FlagEmbeddingTgt:     {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:   {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:    {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding width; must match the model output"},
	FlagEmbeddingInFlt:   {Name: "embedding-max-in-flight", ViperKey: "embedding.max_in_flight", Description: "Maximum concurrent embedding requests"},
	FlagEmbeddingAPIKey:  {Name: "embedding-api-key", ViperKey: "embedding.api_key", Description: "API key for the embedding provider"},
	FlagSegmenter:        {Name: "segmenter", ViperKey: "segmenter.strategy", Description: "Segmenter strategy (whole, paragraph)"},
	FlagTopK:             {Name: "top-k", Shorthand: "k", ViperKey: "search.top_k", Description: "Number of search results"},
	FlagAPIListen:        {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagEventStreamProv:  {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Index event publisher (nop, kafka)"},
	FlagEventStreamBrkrs: {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated kafka brokers"},
	FlagEventStreamTopic: {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for index events"},
}

// StoreFlags are the registry keys of every setting needed to open the
// vector store and embedder.
var StoreFlags = []string{
	FlagNotesDir,
	FlagDBLocation,
	FlagExtensionDir,
	FlagVectorStoreProv,
	FlagVectorStoreTgt,
	FlagVectorStoreColl,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
	FlagEmbeddingInFlt,
	FlagEmbeddingAPIKey,
	FlagSegmenter,
	FlagEventStreamProv,
	FlagEventStreamBrkrs,
	FlagEventStreamTopic,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddStoreFlags registers every flag of StoreFlags on cmd. Values are read
// back through viper after BindRegisteredFlags.
func AddStoreFlags(cmd *cobra.Command) {
	for _, key := range StoreFlags {
		switch key {
		case FlagEmbeddingDims:
			AddUintFlag(cmd, Flags, key, new(uint))
		case FlagEmbeddingInFlt:
			AddIntFlag(cmd, Flags, key, new(int))
		default:
			AddStringFlag(cmd, Flags, key, new(string))
		}
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
