package sink

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/message"
)

const minLongRunningPeriod = time.Second

type runningCase struct {
	name  string
	start time.Time
}

// LongRunning reports cases that keep executing while nothing else
// happens. A background check runs every max(1s, threshold/10) from
// AssemblyStarting until AssemblyFinished or Stop.
type LongRunning struct {
	log       logrus.FieldLogger
	next      message.Sink
	threshold time.Duration
	period    time.Duration

	mu           sync.Mutex
	assemblyID   string
	executing    map[string]runningCase
	lastActivity time.Time
	// finished is set before AssemblyFinished is forwarded; no diagnostic
	// may follow it.
	finished bool

	rejected atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ message.Sink = (*LongRunning)(nil)

// NewLongRunning creates a detector forwarding to next.
func NewLongRunning(log logrus.FieldLogger, threshold time.Duration, next message.Sink) *LongRunning {
	return &LongRunning{
		log:          log.WithField("component", "long-running"),
		next:         next,
		threshold:    threshold,
		period:       max(minLongRunningPeriod, threshold/10),
		executing:    make(map[string]runningCase, 8),
		lastActivity: time.Now(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// OnMessage records activity and forwards msg.
func (l *LongRunning) OnMessage(msg message.Message) bool {
	now := time.Now()

	l.mu.Lock()
	l.lastActivity = now

	switch m := msg.(type) {
	case *message.AssemblyStarting:
		l.assemblyID = m.AssemblyID
	case *message.CaseStarting:
		l.executing[m.CaseID] = runningCase{name: m.CaseDisplayName, start: now}
	case *message.CaseFinished:
		delete(l.executing, m.CaseID)
	case *message.AssemblyFinished:
		l.finished = true
	}
	l.mu.Unlock()

	if msg.Kind() == message.KindAssemblyStarting {
		l.startOnce.Do(func() { go l.loop() })
	}

	ok := l.next.OnMessage(msg)

	if msg.Kind() == message.KindAssemblyFinished {
		l.Stop()
	}

	// A rejected diagnostic requests cancellation through the next
	// message the runner sends.
	if l.rejected.Swap(false) {
		ok = false
	}

	return ok
}

// Stop ends the background check and waits for it to exit. It is safe to
// call more than once, and before the check ever started.
func (l *LongRunning) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)

		// Claim startOnce so the loop can no longer be started.
		started := true
		l.startOnce.Do(func() { started = false })

		if started {
			<-l.done
		}
	})
}

// Close implements io.Closer.
func (l *LongRunning) Close() error {
	l.Stop()

	return nil
}

func (l *LongRunning) loop() {
	defer close(l.done)

	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.check(now)
		}
	}
}

func (l *LongRunning) check(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.finished || now.Sub(l.lastActivity) < l.threshold {
		return
	}

	var slow []runningCase

	for _, rc := range l.executing {
		if now.Sub(rc.start) >= l.threshold {
			slow = append(slow, rc)
		}
	}

	l.lastActivity = now

	if len(slow) == 0 {
		return
	}

	slices.SortFunc(slow, func(a, b runningCase) int { return a.start.Compare(b.start) })

	var sb strings.Builder

	for i, rc := range slow {
		if i > 0 {
			sb.WriteByte('\n')
		}

		elapsed := now.Sub(rc.start).Round(time.Second)
		fmt.Fprintf(&sb, "[Long Running Test] '%s', Elapsed: %s", rc.name, elapsed)

		l.log.WithFields(logrus.Fields{
			"case":    rc.name,
			"elapsed": elapsed,
		}).Warn("Long running test")
	}

	// Sent under the lock so it cannot overtake AssemblyFinished.
	if !l.next.OnMessage(&message.DiagnosticMessage{
		IDs:     message.IDs{AssemblyID: l.assemblyID},
		Message: sb.String(),
	}) {
		l.rejected.Store(true)
	}
}
