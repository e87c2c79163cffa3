// Package initcmder provides the init command for initializing a local
// .notevec directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/pkg/cliui"
	"github.com/papercomputeco/notevec/pkg/config"
)

const (
	dirName    = ".notevec"
	configFile = "config.toml"
)

const initLongDesc string = `Initialize a new .notevec/ directory in the current working directory.

Creates a local .notevec/ directory that takes precedence over the default
~/.notevec/ directory for configuration and the default sqlite-vec database.
A config.toml with default values is written when none exists.

Use --preset to write the configuration of an embedding provider, or the
config.toml served at a URL. A preset overwrites an existing config.toml.

Examples:
  notevec init
  notevec init --preset openai
  notevec init --preset https://example.com/notevec/config.toml`

const initShortDesc string = "Initialize a local .notevec/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Embedding provider preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context, out io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	var cfg *config.Config
	if c.preset != "" {
		// Resolve the preset first so a bad preset leaves nothing behind.
		cfg, err = resolvePreset(ctx, c.preset)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .notevec directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, statErr := os.Stat(filepath.Join(dir, configFile))
	exists := statErr == nil

	switch {
	case cfg != nil:
	case exists:
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	default:
		cfg = config.NewDefaultConfig()
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	fmt.Fprintf(out, "  %s %s %s\n",
		cliui.KeyStyle.Render("embedding:"),
		cliui.ValueStyle.Render(cfg.Embedding.Provider+" "+cfg.Embedding.Model),
		cliui.DimStyle.Render(fmt.Sprintf("(%d dimensions)", cfg.Embedding.Dimensions)),
	)
	return nil
}

// resolvePreset returns the named preset, or fetches and parses the
// config.toml at an http(s) URL.
func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	if !strings.HasPrefix(preset, "http://") && !strings.HasPrefix(preset, "https://") {
		return config.PresetConfig(preset)
	}

	data, err := fetchRemoteConfig(ctx, preset)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}

func fetchRemoteConfig(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("HTTP " + resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
