package config

const (
	defaultNotesDir = "."

	defaultVectorProvider   = "sqlite"
	defaultVectorCollection = "notevec"

	defaultEmbeddingProvider    = "ollama"
	defaultEmbeddingTarget      = "http://localhost:11434"
	defaultEmbeddingModel       = "nomic-embed-text"
	defaultEmbeddingDimensions  = 768
	defaultEmbeddingMaxInFlight = 4

	defaultSegmenterStrategy = "whole"
	defaultSearchTopK        = 20
	defaultAPIListen         = ":8091"

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "notevec.index"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Notes: NotesConfig{
			Dir: defaultNotesDir,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: defaultVectorCollection,
		},
		Embedding: EmbeddingConfig{
			Provider:    defaultEmbeddingProvider,
			Target:      defaultEmbeddingTarget,
			Model:       defaultEmbeddingModel,
			Dimensions:  defaultEmbeddingDimensions,
			MaxInFlight: defaultEmbeddingMaxInFlight,
		},
		Segmenter: SegmenterConfig{
			Strategy: defaultSegmenterStrategy,
		},
		Search: SearchConfig{
			TopK: defaultSearchTopK,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
