package types

import "errors"

// Config holds backend selection and engine parameters.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DSN is the connection string of the postgres backend.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// CascadeDepth bounds recursive cascade propagation. Zero selects
	// DefaultCascadeDepth.
	CascadeDepth int `json:"cascade_depth,omitempty" yaml:"cascade_depth,omitempty"`

	// BatchSize is the page size used by lazy iteration. Zero selects
	// DefaultBatchSize.
	BatchSize int `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Engine defaults.
const (
	DefaultCascadeDepth = 32
	DefaultBatchSize    = 100
)

// Config validation errors.
var (
	ErrBackendEmpty        = errors.New("backend must not be empty")
	ErrBackendUnknown      = errors.New("unknown backend")
	ErrDSNEmpty            = errors.New("postgres backend requires a dsn")
	ErrCascadeDepthInvalid = errors.New("cascade depth must not be negative")
	ErrBatchSizeInvalid    = errors.New("batch size must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Backend == BackendPostgres && c.DSN == "" {
		return ErrDSNEmpty
	}
	if c.CascadeDepth < 0 {
		return ErrCascadeDepthInvalid
	}
	if c.BatchSize < 0 {
		return ErrBatchSizeInvalid
	}
	return nil
}

// EffectiveCascadeDepth returns CascadeDepth or its default.
func (c Config) EffectiveCascadeDepth() int {
	if c.CascadeDepth == 0 {
		return DefaultCascadeDepth
	}
	return c.CascadeDepth
}

// EffectiveBatchSize returns BatchSize or its default.
func (c Config) EffectiveBatchSize() int {
	if c.BatchSize == 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}
