package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/scope"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func record(t *testing.T, dir string) *message.Collector {
	t.Helper()

	rec, err := Open(testLogger(), dir)
	require.NoError(t, err)

	live := &message.Collector{}
	tee := message.SinkFunc(func(msg message.Message) bool {
		live.OnMessage(msg)

		return rec.OnMessage(msg)
	})

	a := &scope.Assembly{
		Name: "recorded",
		Collections: []*scope.Collection{{
			DisplayName: "c",
			Classes: []*scope.Class{{Name: "K", Methods: []*scope.Method{{Name: "M", Cases: []*scope.Case{
				{DisplayName: "ok", Body: func(context.Context, *scope.TestContext) error { return nil }},
				{DisplayName: "bad", Body: func(context.Context, *scope.TestContext) error { return errors.New("nope") }},
			}}}}},
		}},
	}

	scope.NewRunner(testLogger(), scope.Options{}).Run(context.Background(), a, tee)

	require.NoError(t, rec.Err())
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "close is idempotent")

	return live
}

func TestRecordAndReplay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recording")
	live := record(t, dir)

	replayed := &message.Collector{}

	n, err := Replay(context.Background(), dir, replayed)
	require.NoError(t, err)

	assert.Equal(t, len(live.Messages()), n)
	assert.Equal(t, live.Kinds(), replayed.Kinds())

	finished := message.Filter[*message.AssemblyFinished](replayed.Messages())
	require.Len(t, finished, 1)
	assert.Equal(t, 2, finished[0].Summary.Total)
	assert.Equal(t, 1, finished[0].Summary.Failed)

	failed := message.Filter[*message.TestFailed](replayed.Messages())
	require.Len(t, failed, 1)
	assert.Equal(t, "nope", failed[0].Failure.Messages[0])
}

func TestReplay_StopsWhenSinkRejects(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recording")
	record(t, dir)

	rejecting := &message.Collector{Reject: func(m message.Message) bool {
		return m.Kind() == message.KindTestStarting
	}}

	n, err := Replay(context.Background(), dir, rejecting)
	require.NoError(t, err)

	assert.Equal(t, message.KindTestStarting, rejecting.Kinds()[n-1])
}

func TestOpen_RefusesExistingRecording(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recording")
	record(t, dir)

	_, err := Open(testLogger(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has data")
}

func TestReplay_EmptyRecording(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recording")

	rec, err := Open(testLogger(), dir)
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	_, err = Replay(context.Background(), dir, message.Discard)
	require.Error(t, err)
}
