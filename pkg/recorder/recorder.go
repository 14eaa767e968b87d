// Package recorder persists the message stream to an append-only log and
// replays it later.
package recorder

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/wal"

	"github.com/ethpandaops/testoor/pkg/message"
)

// Recorder is a Sink appending every message to a write-ahead log. A
// recording failure never cancels the run; it is logged once and
// reported by Err.
type Recorder struct {
	log logrus.FieldLogger

	mu        sync.Mutex
	wal       *wal.Log
	nextIndex uint64
	err       error
}

var _ message.Sink = (*Recorder)(nil)

// Open creates a new recording in dir, which must not already hold one.
func Open(log logrus.FieldLogger, dir string) (*Recorder, error) {
	l, err := wal.Open(dir, &wal.Options{NoSync: true})
	if err != nil {
		return nil, errors.WithMessage(err, "could not open recording")
	}

	lastIndex, err := l.LastIndex()
	if err != nil {
		_ = l.Close()

		return nil, errors.WithMessage(err, "could not read last index")
	}

	if lastIndex != 0 {
		_ = l.Close()

		return nil, errors.Errorf("recording %s already has data in it", dir)
	}

	return &Recorder{
		log:       log.WithFields(logrus.Fields{"component": "recorder", "dir": dir}),
		wal:       l,
		nextIndex: 1,
	}, nil
}

// OnMessage implements message.Sink.
func (r *Recorder) OnMessage(msg message.Message) bool {
	data, err := message.Marshal(msg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil || r.wal == nil {
		return true
	}

	if err == nil {
		err = r.wal.Write(r.nextIndex, data)
	}

	if err != nil {
		r.err = errors.WithMessagef(err, "could not record message %d (%s)", r.nextIndex, msg.Kind())
		r.log.WithError(r.err).Error("Recording stopped")

		return true
	}

	r.nextIndex++

	return true
}

// Err returns the error that stopped recording, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Close syncs and closes the log.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wal == nil {
		return nil
	}

	l := r.wal
	r.wal = nil

	if err := l.Sync(); err != nil {
		_ = l.Close()

		return errors.WithMessage(err, "could not sync recording")
	}

	if err := l.Close(); err != nil {
		return errors.WithMessage(err, "could not close recording")
	}

	r.log.WithField("messages", r.nextIndex-1).Debug("Recording closed")

	return nil
}

// Replay re-dispatches a recording to sink and returns how many messages
// were delivered. Every message is validated before delivery. Replay
// stops early when sink requests cancellation or ctx is done.
func Replay(ctx context.Context, dir string, sink message.Sink) (int, error) {
	l, err := wal.Open(dir, &wal.Options{NoSync: true})
	if err != nil {
		return 0, errors.WithMessage(err, "could not open recording")
	}
	defer func() { _ = l.Close() }()

	first, err := l.FirstIndex()
	if err != nil {
		return 0, errors.WithMessage(err, "could not read first index")
	}

	last, err := l.LastIndex()
	if err != nil {
		return 0, errors.WithMessage(err, "could not read last index")
	}

	if last == 0 {
		return 0, errors.Errorf("recording %s is empty", dir)
	}

	delivered := 0

	for index := first; index <= last; index++ {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		data, err := l.Read(index)
		if err != nil {
			return delivered, errors.WithMessagef(err, "could not read index %d", index)
		}

		msg, err := message.Unmarshal(data)
		if err != nil {
			return delivered, errors.WithMessagef(err, "could not decode index %d, is the recording corrupt?", index)
		}

		if err := message.Validate(msg); err != nil {
			return delivered, errors.WithMessagef(err, "invalid message at index %d", index)
		}

		delivered++

		if !sink.OnMessage(msg) {
			break
		}
	}

	return delivered, nil
}
