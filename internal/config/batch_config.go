package config

import "time"

type BatchConfig interface {
	GetProgressYield() time.Duration
	GetDefaultGroupID() string
}

type Batch struct {
	ProgressYield  time.Duration `env:"PROGRESS_YIELD" envDefault:"100ms"`
	DefaultGroupID string        `env:"GROUP_ID"`
}

var _ BatchConfig = Batch{}

// GetProgressYield is the pause inserted after each throttled progress emission
func (b Batch) GetProgressYield() time.Duration {
	if b.ProgressYield < 0 {
		return 0
	}
	return b.ProgressYield
}

func (b Batch) GetDefaultGroupID() string {
	return b.DefaultGroupID
}
