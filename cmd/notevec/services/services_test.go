package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/notevec/pkg/config"
	"github.com/papercomputeco/notevec/pkg/credentials"
	"github.com/papercomputeco/notevec/pkg/logger"
	"github.com/papercomputeco/notevec/pkg/vector"
	vectorutils "github.com/papercomputeco/notevec/pkg/vector/utils"
)

var _ = Describe("resolveAPIKey", func() {
	var (
		configDir string
		cfg       *config.Config
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		cfg = config.NewDefaultConfig()
		cfg.Embedding.Provider = "openai"
	})

	It("keeps a configured key", func() {
		cfg.Embedding.APIKey = "sk-config"
		Expect(resolveAPIKey(cfg, configDir)).To(Equal("sk-config"))
	})

	It("uses the stored credential", func() {
		mgr, err := credentials.NewManager(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("openai", "sk-stored")).To(Succeed())

		Expect(resolveAPIKey(cfg, configDir)).To(Equal("sk-stored"))
	})

	It("falls back to the environment", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")
		Expect(resolveAPIKey(cfg, configDir)).To(Equal("sk-env"))
	})

	It("needs no key for ollama", func() {
		cfg.Embedding.Provider = "ollama"
		Expect(resolveAPIKey(cfg, configDir)).To(BeEmpty())
	})
})

var _ = Describe("Open", func() {
	var cfg *config.Config

	BeforeEach(func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		cfg = config.NewDefaultConfig()
		cfg.Notes.Dir = GinkgoT().TempDir()
		cfg.VectorStore.Provider = "memory"
	})

	It("opens every collaborator", func() {
		svc, err := Open(context.Background(), cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(svc.Close)

		Expect(svc.Source).NotTo(BeNil())
		Expect(svc.Indexer).NotTo(BeNil())
		Expect(svc.Searcher).NotTo(BeNil())
		Expect(svc.Publisher).NotTo(BeNil())
	})

	It("opens a store created at other dimensions so it can be cleared", func() {
		ctx := context.Background()
		cfg.VectorStore.Provider = vectorutils.ProviderSQLite
		cfg.Storage.DBLocation = filepath.Join(GinkgoT().TempDir(), "notevec.sqlite")
		cfg.Embedding.Dimensions = 4

		svc, err := Open(ctx, cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Store.Insert(ctx, "a.md", vector.Span{Start: 0, End: 1}, []float32{1, 0, 0, 0})
		Expect(err).NotTo(HaveOccurred())
		Expect(svc.Close()).To(Succeed())

		cfg.Embedding.Dimensions = 8
		svc, err = Open(ctx, cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(svc.Close)

		_, err = svc.Indexer.Stats(ctx)
		Expect(errors.Is(err, vector.ErrDimensionMismatch)).To(BeTrue())

		Expect(svc.Indexer.ClearDB(ctx, true)).To(Succeed())
		stats, err := svc.Indexer.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Dimensions).To(Equal(uint(8)))
		Expect(stats.Records).To(BeZero())
	})

	It("fails without a notes directory", func() {
		cfg.Notes.Dir = ""
		_, err := Open(context.Background(), cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(errors.Is(err, vector.ErrConfiguration)).To(BeTrue())
	})

	It("fails for hosted openai without any key", func() {
		cfg.Embedding.Provider = "openai"
		cfg.Embedding.Target = ""
		_, err := Open(context.Background(), cfg, GinkgoT().TempDir(), logger.Nop())
		Expect(errors.Is(err, vector.ErrConfiguration)).To(BeTrue())
	})
})

var _ = Describe("NewLogger", func() {
	var (
		cmd       *cobra.Command
		configDir string
		stderr    bytes.Buffer
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		stderr.Reset()

		root := &cobra.Command{Use: "notevec"}
		root.PersistentFlags().Bool("debug", false, "")
		root.PersistentFlags().String("config-dir", "", "")
		cmd = &cobra.Command{Use: "serve", RunE: func(*cobra.Command, []string) error { return nil }}
		AddLogFlags(cmd)
		root.AddCommand(cmd)
		root.SetErr(&stderr)
	})

	parse := func(args ...string) {
		Expect(cmd.ParseFlags(append(args, "--config-dir", configDir))).To(Succeed())
	}

	It("writes terminal records without opening a file", func() {
		parse()
		log, closer, err := NewLogger(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(closer).To(BeNil())

		log.Info("listening", "addr", ":8080")
		Expect(stderr.String()).To(ContainSubstring("listening"))
		Expect(json.Valid(bytes.TrimSpace(stderr.Bytes()))).To(BeFalse())
	})

	It("switches stderr to JSON with --log-json", func() {
		parse("--log-json")
		log, _, err := NewLogger(cmd)
		Expect(err).NotTo(HaveOccurred())

		log.Info("listening", "addr", ":8080")
		var record map[string]any
		Expect(json.Unmarshal(stderr.Bytes(), &record)).To(Succeed())
		Expect(record["addr"]).To(Equal(":8080"))
	})

	It("tees JSON records into a log file inside the config directory", func() {
		parse("--log-file", "serve.log")
		log, closer, err := NewLogger(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(closer).NotTo(BeNil())

		log.Info("node committed", "node_id", "garden.md")
		log.Debug("span embedded")
		Expect(closer.Close()).To(Succeed())

		Expect(stderr.String()).To(ContainSubstring("node committed"))

		f, err := os.Open(filepath.Join(configDir, "serve.log"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(f.Close)

		scanner := bufio.NewScanner(f)
		Expect(scanner.Scan()).To(BeTrue())
		var record map[string]any
		Expect(json.Unmarshal(scanner.Bytes(), &record)).To(Succeed())
		Expect(record["msg"]).To(Equal("node committed"))
		Expect(record["node_id"]).To(Equal("garden.md"))
		Expect(record["component"]).To(Equal("serve"))
		Expect(scanner.Scan()).To(BeFalse())
	})

	It("fails when the log file cannot be opened", func() {
		parse("--log-file", filepath.Join(configDir, "missing", "serve.log"))
		_, _, err := NewLogger(cmd)
		Expect(err).To(MatchError(ContainSubstring("opening log file")))
	})
})
