package flow

import (
	"github.com/kbukum/flowkit/validation"
)

// Config holds the tunables a service reads from its configuration file to
// size the pipelines it builds.
type Config struct {
	// Concurrency is the n of MapParallel stages.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1,lte=1024"`
	// Lanes is the n of Parallelize stages.
	Lanes int `yaml:"lanes" mapstructure:"lanes" validate:"gte=1,lte=1024"`
	// BatchSize is the group size of Batch stages.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1"`
	// PushBuffer is the channel capacity of Pushable sources.
	PushBuffer int `yaml:"push_buffer" mapstructure:"push_buffer" validate:"gte=0"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.Lanes == 0 {
		c.Lanes = 2
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
}

// Validate checks the configured bounds.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
