package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/notevec/pkg/logger"
)

// decodeLines parses every JSON record written to buf.
func decodeLines(buf *bytes.Buffer) []map[string]any {
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var record map[string]any
		Expect(json.Unmarshal([]byte(line), &record)).To(Succeed())
		records = append(records, record)
	}
	return records
}

// failingWriter rejects every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("node committed", "node_id", "garden.md")

			Expect(buf.String()).To(ContainSubstring("node committed"))
			Expect(buf.String()).To(ContainSubstring("node_id=garden.md"))
		})

		It("drops debug records unless debug is on", func() {
			var quiet, loud bytes.Buffer
			logger.New(logger.WithWriter(&quiet)).Debug("span skipped")
			logger.New(logger.WithWriter(&loud), logger.WithDebug(true)).Debug("span skipped")

			Expect(quiet.String()).To(BeEmpty())
			Expect(loud.String()).To(ContainSubstring("span skipped"))
		})

		It("writes one JSON object per record", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("bulk update finished", "nodes", 2)
			l.Warn("publishing index event failed")

			records := decodeLines(&buf)
			Expect(records).To(HaveLen(2))
			Expect(records[0]["msg"]).To(Equal("bulk update finished"))
			Expect(records[0]["nodes"]).To(BeNumerically("==", 2))
			Expect(records[1]["level"]).To(Equal("WARN"))
		})

		It("prefers the pretty handler over JSON", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithPretty(true))
			l.Info("watching notes")

			Expect(buf.String()).To(ContainSubstring("watching notes"))
			Expect(json.Valid(bytes.TrimSpace(buf.Bytes()))).To(BeFalse())
		})

		It("passes debug records through the pretty handler when enabled", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true), logger.WithDebug(true))
			l.Debug("segmenting node", "node_id", "abc")

			Expect(buf.String()).To(ContainSubstring("segmenting node"))
			Expect(buf.String()).To(ContainSubstring("abc"))
		})

		It("writes to every added writer", func() {
			var first, second bytes.Buffer
			l := logger.New(logger.WithWriter(&first), logger.WithWriter(&second), logger.WithWriter(nil))
			l.Info("store opened")

			Expect(first.String()).To(ContainSubstring("store opened"))
			Expect(second.String()).To(ContainSubstring("store opened"))
		})

		It("reports the caller with WithSource", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithSource(true))
			l.Info("located")

			Expect(decodeLines(&buf)[0]).To(HaveKey("source"))
		})

		It("binds the component attribute", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithComponent("watcher"))
			l.WithGroup("event").Info("note changed", "path", "garden.md")

			record := decodeLines(&buf)[0]
			Expect(record["component"]).To(Equal("watcher"))
			Expect(record["event"]).To(HaveKeyWithValue("path", "garden.md"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
				Expect(l.Handler().Enabled(context.Background(), level)).To(BeFalse())
			}
			Expect(func() { l.With("key", "value").Error("msg") }).NotTo(Panic())
		})
	})

	Describe("Tee", func() {
		It("hands each record to every logger that accepts its level", func() {
			var console, file bytes.Buffer
			l := logger.Tee(
				logger.New(logger.WithWriter(&console), logger.WithPretty(true)),
				logger.New(logger.WithWriter(&file), logger.WithJSON(true), logger.WithDebug(true)),
			)

			l.Debug("span embedded", "record_id", 7)
			l.Info("node committed")

			Expect(console.String()).NotTo(ContainSubstring("span embedded"))
			Expect(console.String()).To(ContainSubstring("node committed"))

			records := decodeLines(&file)
			Expect(records).To(HaveLen(2))
			Expect(records[0]["record_id"]).To(BeNumerically("==", 7))
		})

		It("carries attributes and groups to every logger", func() {
			var a, b bytes.Buffer
			l := logger.Tee(
				logger.New(logger.WithWriter(&a), logger.WithJSON(true)),
				logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
			)

			l.With("node_id", "garden.md").WithGroup("span").Info("stored", "start", 0)

			for _, buf := range []*bytes.Buffer{&a, &b} {
				record := decodeLines(buf)[0]
				Expect(record["node_id"]).To(Equal("garden.md"))
				Expect(record["span"]).To(HaveKeyWithValue("start", BeNumerically("==", 0)))
			}
		})

		It("keeps writing to the other loggers when one output fails", func() {
			var buf bytes.Buffer
			l := logger.Tee(
				logger.New(logger.WithWriter(failingWriter{}), logger.WithJSON(true)),
				nil,
				logger.New(logger.WithWriter(&buf), logger.WithJSON(true)),
			)

			l.Info("still logged")
			Expect(decodeLines(&buf)[0]["msg"]).To(Equal("still logged"))
		})

		It("returns the single logger's handler unchanged", func() {
			var buf bytes.Buffer
			inner := logger.New(logger.WithWriter(&buf))
			Expect(logger.Tee(inner).Handler()).To(BeIdenticalTo(inner.Handler()))
		})
	})
})
