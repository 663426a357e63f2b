// -----------------------------------------------------------------------------
// Structured Logging Setup
// -----------------------------------------------------------------------------
//
// Package logging installs the process-wide slog logger. Output is JSON on
// stdout by default, with static tags (service, version, commit) attached to
// every record so log shipping can filter by deployment.
//
// Environment:
//
//	LOG_LEVEL:  debug|info|warn|error   (default: info)
//	LOG_FORMAT: json|text               (default: json)
//	LOG_TAGS:   "k=v,k2=v2"             (applied to every log)
//	LOG_SOURCE: true|1                  (include file:line)
//
// -----------------------------------------------------------------------------

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls handler construction.
type Options struct {
	Level     slog.Level
	Format    string            // "json" (default) | "text"
	Tags      map[string]string // static tags (service=...,version=...)
	AddSource bool              // include file:line
	Output    io.Writer         // defaults to os.Stdout
}

// Init builds and installs a default slog.Logger with static tags.
func Init(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		h = slog.NewTextHandler(out, hopts)
	default:
		h = slog.NewJSONHandler(out, hopts)
	}

	attrs := make([]any, 0, len(opts.Tags)*2)
	for k, v := range opts.Tags {
		attrs = append(attrs, k, v)
	}

	logger := slog.New(h).With(attrs...)
	slog.SetDefault(logger)
	return logger
}

// InitFromEnv reads the LOG_* variables, merges extraTags over LOG_TAGS and
// installs the result as the default logger.
func InitFromEnv(extraTags map[string]string) *slog.Logger {
	addSource := strings.EqualFold(os.Getenv("LOG_SOURCE"), "1") || strings.EqualFold(os.Getenv("LOG_SOURCE"), "true")

	tags := parseTags(os.Getenv("LOG_TAGS"))
	for k, v := range extraTags {
		tags[k] = v
	}

	return Init(Options{
		Level:     ParseLevel(os.Getenv("LOG_LEVEL")),
		Format:    os.Getenv("LOG_FORMAT"),
		Tags:      tags,
		AddSource: addSource,
	})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseTags(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
