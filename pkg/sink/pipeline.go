package sink

import (
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/config"
	"github.com/ethpandaops/testoor/pkg/message"
)

// Pipeline is the chain of transforms configured for a run. Messages flow
// FailSkips/FailWarns, then StopOnFail, then the long-running detector,
// then next.
type Pipeline struct {
	head        message.Sink
	longRunning *LongRunning
}

var _ message.Sink = (*Pipeline)(nil)

// NewPipeline builds the pipeline described by cfg in front of next.
func NewPipeline(log logrus.FieldLogger, cfg *config.RunConfig, next message.Sink) (*Pipeline, error) {
	if cfg.FailSkips && cfg.FailWarns {
		return nil, config.ErrFailSkipsAndWarns
	}

	log = log.WithField("component", "pipeline")

	p := &Pipeline{}
	head := next

	if cfg.LongRunningThreshold > 0 {
		p.longRunning = NewLongRunning(log, cfg.LongRunningThreshold, head)
		head = p.longRunning
	}

	if cfg.StopOnFail {
		head = NewStopOnFail(head)
	}

	if cfg.FailWarns {
		head = NewFailWarns(head)
	}

	if cfg.FailSkips {
		head = NewFailSkips(head)
	}

	log.WithFields(logrus.Fields{
		"fail_skips":             cfg.FailSkips,
		"fail_warns":             cfg.FailWarns,
		"stop_on_fail":           cfg.StopOnFail,
		"long_running_threshold": cfg.LongRunningThreshold,
	}).Debug("Built sink pipeline")

	p.head = head

	return p, nil
}

// OnMessage implements message.Sink.
func (p *Pipeline) OnMessage(msg message.Message) bool {
	return p.head.OnMessage(msg)
}

// Close stops background work. The long-running detector normally stops
// on AssemblyFinished, which an aborted run never sends.
func (p *Pipeline) Close() error {
	if p.longRunning != nil {
		p.longRunning.Stop()
	}

	return nil
}
