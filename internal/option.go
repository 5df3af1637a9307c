package internal

import "github.com/starford/capsule/internal/engine"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	picker engine.DirectoryPicker
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithPicker overrides the directory picker derived from workspaces.default_root.
func WithPicker(p engine.DirectoryPicker) Option {
	return func(a *application) {
		a.picker = p
	}
}
