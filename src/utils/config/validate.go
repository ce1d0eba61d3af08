package config

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid configuration")

func (self *Config) Validate() error {
	keys := make(map[string]struct{}, len(self.Contracts))
	for i, c := range self.Contracts {
		if c.Key == "" {
			return fmt.Errorf("%w: contract #%d has no checkpoint key", ErrInvalidConfig, i)
		}
		if c.ContractId == "" {
			return fmt.Errorf("%w: contract %q has no contract id", ErrInvalidConfig, c.Key)
		}
		if _, ok := keys[c.Key]; ok {
			return fmt.Errorf("%w: checkpoint key %q used by more than one contract", ErrInvalidConfig, c.Key)
		}
		keys[c.Key] = struct{}{}
	}

	if self.Reconciler.PollInterval <= 0 || self.Reconciler.RetryDelay <= 0 || self.Reconciler.CheckpointMissingBackoff <= 0 {
		return fmt.Errorf("%w: reconciler intervals must be positive", ErrInvalidConfig)
	}
	if self.Reconciler.SafetyMargin < 0 {
		return fmt.Errorf("%w: negative safety margin", ErrInvalidConfig)
	}
	// Nodes reject same-nonce replacements below a 10% price increase
	if self.Publisher.Enabled && self.Publisher.ReplacementGasPriceBump < 10 {
		return fmt.Errorf("%w: replacement gas price bump must be at least 10%%", ErrInvalidConfig)
	}
	return nil
}
