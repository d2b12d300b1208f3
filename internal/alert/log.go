package alert

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier writes alerts to the structured log. It is the default channel
// for local runs where no reviewer endpoint exists.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("alert")}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body, recipient string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	n.logger.Warn(subject,
		zap.String("delivery_id", id),
		zap.String("recipient", recipient),
		zap.String("body", body),
	)
	return id, nil
}
