// Package services resolves the effective configuration of a notevec command
// and opens the collaborators it runs against: note source, vector store,
// embedding gateway, event publisher, indexer and searcher.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/api/search"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/credentials"
	"github.com/papercomputeco/notevec/pkg/dotdir"
	"github.com/papercomputeco/notevec/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/notevec/pkg/embeddings/utils"
	"github.com/papercomputeco/notevec/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/notevec/pkg/eventstream/utils"
	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/notes/fsnotes"
	"github.com/papercomputeco/notevec/pkg/segment"
	"github.com/papercomputeco/notevec/pkg/vector"
	vectorutils "github.com/papercomputeco/notevec/pkg/vector/utils"
)

// LoadConfig builds the effective configuration for cmd: flags registered
// under keys, then NOTEVEC_* environment variables, then config.toml, then
// defaults.
func LoadConfig(cmd *cobra.Command, keys ...string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, keys)

	return config.FromViper(v), nil
}

// Flags read by NewLogger when the command registers them.
const (
	FlagLogJSON = "log-json"
	FlagLogFile = "log-file"
)

// AddLogFlags registers --log-json and --log-file on cmd.
func AddLogFlags(cmd *cobra.Command) {
	cmd.Flags().Bool(FlagLogJSON, false, "Write JSON log records to stderr")
	cmd.Flags().String(FlagLogFile, "", "Also append JSON log records to this file (relative paths resolve inside .notevec/)")
}

// NewLogger returns the CLI logger honoring --debug and, when cmd registers
// them, --log-json and --log-file. The returned closer is nil unless a log
// file was opened.
func NewLogger(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	asJSON, _ := cmd.Flags().GetBool(FlagLogJSON)

	console := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(!asJSON),
		logger.WithJSON(asJSON),
		logger.WithSource(debug),
		logger.WithWriter(cmd.ErrOrStderr()),
	)

	location, _ := cmd.Flags().GetString(FlagLogFile)
	if location == "" {
		return console, nil, nil
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	path, err := dotdir.NewManager().LogPath(location, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: resolving log file: %w", vector.ErrConfiguration, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}

	file := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithSource(debug),
		logger.WithComponent(cmd.Name()),
		logger.WithWriter(f),
	)
	return logger.Tee(console, file), f, nil
}

// Services holds the opened collaborators of one command run.
type Services struct {
	Config    *config.Config
	Logger    *slog.Logger
	Source    *fsnotes.Source
	Store     vector.Store
	Gateway   *embeddings.Gateway
	Publisher eventstream.Publisher
	Indexer   *indexer.Indexer
	Searcher  *search.Searcher

	logFile io.Closer
}

// Open builds every collaborator from cfg. The vector store connects and
// checks its schema on first use, so a store created at other dimensions
// can still be dropped. configDir locates the default sqlite database. The
// caller must Close the returned Services.
func Open(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (*Services, error) {
	s := &Services{Config: cfg, Logger: log}

	var err error
	s.Source, err = fsnotes.New(fsnotes.Config{Dir: cfg.Notes.Dir}, log)
	if err != nil {
		return nil, err
	}

	strategy, err := segment.New(cfg.Segmenter.Strategy)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Storage.DBLocation
	if cfg.VectorStore.Provider == vectorutils.ProviderSQLite || cfg.VectorStore.Provider == "" {
		dbPath, err = dotdir.NewManager().DBPath(cfg.Storage.DBLocation, configDir)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving database path: %w", vector.ErrConfiguration, err)
		}
	}

	s.Store, err = vectorutils.NewVectorStore(&vectorutils.NewVectorStoreOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    cfg.VectorStore.Target,
		Collection:   cfg.VectorStore.Collection,
		DBPath:       dbPath,
		ExtensionDir: cfg.Storage.ExtensionDir,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	apiKey, err := resolveAPIKey(cfg, configDir)
	if err != nil {
		_ = s.Store.Close()
		return nil, err
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       apiKey,
		Dimensions:   cfg.Embedding.Dimensions,
	})
	if err != nil {
		_ = s.Store.Close()
		return nil, err
	}
	s.Gateway = embeddings.NewGateway(embedder, embeddings.GatewayConfig{
		MaxInFlight: int64(cfg.Embedding.MaxInFlight),
	}, log)

	s.Publisher, err = eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: cfg.EventStream.Provider,
		Brokers:      cfg.EventStream.BrokerList(),
		Topic:        cfg.EventStream.Topic,
		Logger:       log,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Indexer, err = indexer.New(indexer.Config{
		Store:         s.Store,
		Gateway:       s.Gateway,
		Segmenter:     strategy,
		Source:        s.Source,
		Publisher:     s.Publisher,
		StoreProvider: cfg.VectorStore.Provider,
		Dimensions:    cfg.Embedding.Dimensions,
		Logger:        log,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Searcher, err = search.NewSearcher(search.Config{
		Gateway: s.Gateway,
		Store:   s.Store,
		Source:  s.Source,
		TopK:    cfg.Search.TopK,
		Logger:  log,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Debug("services opened",
		"notes_dir", s.Source.Dir(),
		"vector_store", cfg.VectorStore.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", cfg.Embedding.Model,
		"dimensions", cfg.Embedding.Dimensions,
		"segmenter", strategy.Name(),
	)

	return s, nil
}

// resolveAPIKey returns embedding.api_key, or the credential stored with
// "notevec auth", or the provider's environment variable.
func resolveAPIKey(cfg *config.Config, configDir string) (string, error) {
	if cfg.Embedding.APIKey != "" || !credentials.IsSupportedProvider(cfg.Embedding.Provider) {
		return cfg.Embedding.APIKey, nil
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return "", fmt.Errorf("%w: loading credentials: %w", vector.ErrConfiguration, err)
	}
	key, err := mgr.ResolveKey(cfg.Embedding.Provider)
	if err != nil {
		return "", fmt.Errorf("%w: %w", vector.ErrConfiguration, err)
	}
	return key, nil
}

// OpenForCommand loads the configuration of cmd and opens its services.
func OpenForCommand(cmd *cobra.Command, keys ...string) (*Services, error) {
	cfg, err := LoadConfig(cmd, keys...)
	if err != nil {
		return nil, err
	}
	log, logFile, err := NewLogger(cmd)
	if err != nil {
		return nil, err
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	s, err := Open(cmd.Context(), cfg, configDir, log)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	s.logFile = logFile
	return s, nil
}

// Close releases the publisher, the gateway, the store and the log file.
func (s *Services) Close() error {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Gateway != nil {
		errs = append(errs, s.Gateway.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.logFile != nil {
		errs = append(errs, s.logFile.Close())
	}
	return errors.Join(errs...)
}
