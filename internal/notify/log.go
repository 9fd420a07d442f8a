package notify

import (
	"context"

	"fimwatch/internal/drift"

	log "github.com/sirupsen/logrus"
)

// LogNotifier writes alerts to the log instead of a transport. It stands in
// when no SMTP server is configured.
type LogNotifier struct {
	Logger log.FieldLogger
}

func (n LogNotifier) Notify(ctx context.Context, res *drift.ScanResult) error {
	logger := n.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithFields(log.Fields{
		"root":     res.Root,
		"scan":     res.ID,
		"modified": len(res.Modified),
		"new":      len(res.New),
		"missing":  len(res.Missing),
	}).Warnf("simulated alert: %s\n%s", Subject(res), Body(res))
	return nil
}
