// Package servecmder provides the serve command, which runs the notevec API
// server with the MCP endpoint mounted.
package servecmder

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/api"
	"github.com/papercomputeco/notevec/api/mcp"
	"github.com/papercomputeco/notevec/cmd/notevec/services"
	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/watch"
)

type serveCommander struct {
	watch bool
}

const serveLongDesc string = `Run the notevec API server.

The server exposes search, per-note updates, bulk updates, database clearing
and store statistics over HTTP, and mounts an MCP endpoint at /mcp with the
search and update_node tools. With --watch, the notes directory is watched in
the same process and shares the store handle with the API.

Logs go to stderr; --log-json switches them to JSON and --log-file also
appends JSON records to a file inside .notevec/.

Examples:
  notevec serve
  notevec serve --listen :9000 --watch
  notevec serve --log-file notevec.log`

const serveShortDesc string = "Run the notevec API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, new(string))
	config.AddIntFlag(cmd, config.Flags, config.FlagTopK, new(int))
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Watch the notes directory while serving")
	services.AddLogFlags(cmd)
	config.AddStoreFlags(cmd)

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := append([]string{config.FlagAPIListen, config.FlagTopK}, config.StoreFlags...)
	svc, err := services.OpenForCommand(cmd, keys...)
	if err != nil {
		return err
	}
	defer svc.Close()

	logger := svc.Logger

	mcpServer, err := mcp.NewServer(mcp.Config{
		Searcher: svc.Searcher,
		Updater:  svc.Indexer,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: svc.Config.API.Listen,
		MCPHandler: mcpServer.Handler(),
	}, svc.Indexer, svc.Searcher, logger)

	if c.watch {
		watcher, err := watch.New(watch.Config{
			Source:  svc.Source,
			Updater: svc.Indexer,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Close()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		if err := server.Shutdown(); err != nil {
			return fmt.Errorf("shutting down API server: %w", err)
		}
		return nil
	}
}
