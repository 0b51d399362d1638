// Package notify sends operator alerts when the clock stops synchronizing.
package notify

import (
	"context"

	"github.com/tnicklin/sysclock/logger"
)

// Notifier delivers a text alert.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

var _ Notifier = (*Log)(nil)

// Log writes alerts to a logger at WARN level.
type Log struct {
	logger logger.Logger
}

// NewLog creates a Log notifier.
func NewLog(l logger.Logger) *Log {
	return &Log{logger: logger.OrNop(l)}
}

func (n *Log) Notify(_ context.Context, msg string) error {
	n.logger.WarnW("clock alert", "message", msg)
	return nil
}
