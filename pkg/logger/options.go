package logger

import (
	"io"
	"log/slog"
)

// Option adjusts the logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty renders records with charmbracelet/log for terminals. It takes
// precedence over WithJSON.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON renders one JSON object per record, for log files and
// collectors.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter adds an output. Records go to every added output; without any
// the logger writes to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.writers = append(c.writers, w)
		}
	}
}

// WithSource reports the file:line of the logging call.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithComponent binds a component attribute to every record.
func WithComponent(name string) Option {
	return func(c *config) { c.component = name }
}
