package sink

import (
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// logger writes diagnostics, errors and cleanup failures to a logrus
// logger. Everything else is ignored.
type logger struct {
	log logrus.FieldLogger
}

// NewLogger creates a sink logging diagnostic messages.
func NewLogger(log logrus.FieldLogger) message.Sink {
	return &logger{log: log.WithField("component", "diagnostics")}
}

func (l *logger) OnMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *message.DiagnosticMessage:
		l.log.Info(m.Message)
	case *message.InternalDiagnosticMessage:
		l.log.Debug(m.Message)
	case *message.ErrorMessage:
		l.log.WithField("error", errmeta.CombineMessages(m.Error)).Error("Unhandled error")
	case message.CleanupFailure:
		l.log.WithFields(logrus.Fields{
			"scope": msg.Kind().Level(),
			"id":    msg.ScopeIDs().Own(msg.Kind().Level()),
			"error": errmeta.CombineMessages(m.CleanupError()),
		}).Warn("Cleanup failure")
	}

	return true
}
