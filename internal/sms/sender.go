// Package sms carries one-time codes to phone numbers. No SMS provider is
// wired yet; LogSender records the dispatch so the flow stays exercisable
// in development.
package sms

import (
	"context"

	"github.com/osokin-dev/gatehouse/internal/logging"
)

// LogSender implements twofa.Sender by logging the dispatch.
// TODO: replace with a real provider client once one is chosen.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	return &LogSender{logger: logger.With("module", "sms")}
}

func (s *LogSender) SendCode(ctx context.Context, destination, code string) error {
	// The code itself is deliberately not logged.
	s.logger.Info(ctx, "sms code dispatched", "destination", destination)
	return nil
}
