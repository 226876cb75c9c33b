package mailer

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsoleDispatcher logs messages instead of delivering them.
type ConsoleDispatcher struct {
	logger *zap.Logger
}

// NewConsoleDispatcher returns a dispatcher for local development.
func NewConsoleDispatcher(logger *zap.Logger) *ConsoleDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleDispatcher{logger: logger}
}

func (d *ConsoleDispatcher) Send(_ context.Context, msg Message) ([]MessageID, error) {
	recipients := Unique(msg.Recipients)
	ids := make([]MessageID, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, MessageID{Email: r, ID: "console-" + uuid.NewString()})
	}
	fields := []zap.Field{
		zap.String("template", msg.Template),
		zap.Strings("recipients", recipients),
		zap.Any("data", msg.Data),
	}
	if msg.SendAt != nil {
		fields = append(fields, zap.Time("send_at", *msg.SendAt))
	}
	d.logger.Info("email dispatched", fields...)
	return ids, nil
}

func (d *ConsoleDispatcher) Cancel(_ context.Context, ids []string) error {
	d.logger.Info("scheduled email cancelled", zap.Strings("ids", ids))
	return nil
}
