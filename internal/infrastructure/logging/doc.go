// Package logging provides structured logging for Crofton Core.
//
// It wraps log/slog with level filtering, configurable output format
// (JSON or text) and default service/version attributes, driven by the
// logging section of config.yaml.
package logging
