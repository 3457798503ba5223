package projection

import "github.com/caarlos0/env/v11"

// CheckpointMode names the checkpoint strategy a projection runs under.
// Runtime reports it in Statistics.Mode and does not otherwise read it:
// every mode checkpoints as pressure or the manager suggests, and runs
// until stopped.
type CheckpointMode string

const (
	// ModeContinuous labels a projection that checkpoints periodically as
	// pressure or the manager suggests, without ever stopping on its own.
	ModeContinuous CheckpointMode = "continuous"
	// ModeOneTime labels a projection that processes the feed once. The
	// runtime does not stop it on its own when it catches up.
	ModeOneTime CheckpointMode = "one-time"
	// ModeAdHoc labels a scratch/preview projection. The runtime does not
	// suppress checkpoints for it; whether anything is persisted is up to
	// the CheckpointManager and CheckpointsEnabled.
	ModeAdHoc CheckpointMode = "ad-hoc"
)

// Config carries the enumerated configuration options (SPEC_FULL.md §6).
// LoadConfig populates it from the environment; callers embedding the
// runtime in their own configuration flow may also construct it directly.
type Config struct {
	Mode                              CheckpointMode `env:"PROJECTION_MODE" envDefault:"continuous"`
	CheckpointsEnabled                bool           `env:"CHECKPOINTS_ENABLED" envDefault:"true"`
	EmitEventEnabled                  bool           `env:"EMIT_EVENT_ENABLED" envDefault:"true"`
	PublishStateUpdates               bool           `env:"PUBLISH_STATE_UPDATES" envDefault:"true"`
	PendingEventsThreshold            int            `env:"PENDING_EVENTS_THRESHOLD" envDefault:"1000"`
	CheckpointUnhandledBytesThreshold int            `env:"CHECKPOINT_UNHANDLED_BYTES_THRESHOLD" envDefault:"16777216"`
}

// LoadConfig parses Config from environment variables, applying the
// defaults above where a variable is unset.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns Config populated with the same defaults LoadConfig
// would apply against an empty environment.
func DefaultConfig() Config {
	cfg, _ := LoadConfig()
	return cfg
}
