// Package sink holds the stages messages flow through after the runner:
// count-rewriting transforms, the long-running detector, the execution
// bookkeeping sink and the reporters.
package sink

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// FanOut forwards every message to a set of named sub-sinks.
type FanOut struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	keys  []string
	sinks map[string]message.Sink
}

var _ message.Sink = (*FanOut)(nil)

// NewFanOut creates an empty FanOut.
func NewFanOut(log logrus.FieldLogger) *FanOut {
	return &FanOut{
		log:   log.WithField("component", "fanout"),
		sinks: make(map[string]message.Sink, 4),
	}
}

// Get returns the sub-sink registered under key, creating it with factory
// the first time. A factory error leaves nothing registered.
func (f *FanOut) Get(key string, factory func() (message.Sink, error)) (message.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sinks[key]; ok {
		return s, nil
	}

	s, err := factory()
	if err != nil {
		return nil, fmt.Errorf("creating sink %q: %w", key, err)
	}

	f.sinks[key] = s
	f.keys = append(f.keys, key)

	f.log.WithField("sink", key).Debug("Registered sink")

	return s, nil
}

// OnMessage forwards msg to every sub-sink in registration order. It
// requests cancellation if any sub-sink does.
func (f *FanOut) OnMessage(msg message.Message) bool {
	f.mu.Lock()
	sinks := make([]message.Sink, 0, len(f.keys))

	for _, k := range f.keys {
		sinks = append(sinks, f.sinks[k])
	}
	f.mu.Unlock()

	ok := true

	for _, s := range sinks {
		if !s.OnMessage(msg) {
			ok = false
		}
	}

	return ok
}

// Close closes the sub-sinks that implement io.Closer, in reverse
// registration order. Every sub-sink is closed even if some fail.
func (f *FanOut) Close() error {
	f.mu.Lock()
	keys := f.keys
	sinks := f.sinks
	f.keys = nil
	f.sinks = make(map[string]message.Sink, len(sinks))
	f.mu.Unlock()

	errs := errmeta.NewAggregator()

	for i := len(keys) - 1; i >= 0; i-- {
		c, ok := sinks[keys[i]].(io.Closer)
		if !ok {
			continue
		}

		if err := c.Close(); err != nil {
			f.log.WithError(err).WithField("sink", keys[i]).Warn("Failed to close sink")
			errs.Add(fmt.Errorf("closing sink %q: %w", keys[i], err))
		}
	}

	return errs.ToError()
}
