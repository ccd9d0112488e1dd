package sidefx

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
)

func testLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func allowed(c *Cooldown, key string, at time.Time) bool {
	_, ok := c.Reserve(key, at)
	return ok
}

func TestCooldownPerKey(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	t0 := time.Unix(1000, 0)

	assert.True(t, allowed(c, "alice", t0))
	assert.False(t, allowed(c, "alice", t0.Add(time.Second)))
	assert.True(t, allowed(c, "bob", t0.Add(time.Second)))
	assert.False(t, allowed(c, "alice", t0.Add(9*time.Second)))
	assert.True(t, allowed(c, "alice", t0.Add(10*time.Second)))
}

func TestCooldownRelease(t *testing.T) {
	c := NewCooldown(time.Minute)
	t0 := time.Unix(1000, 0)

	release, ok := c.Reserve("alice", t0)
	require.True(t, ok)
	release()

	assert.True(t, allowed(c, "alice", t0.Add(time.Second)), "a released window is free again")
	assert.False(t, allowed(c, "alice", t0.Add(2*time.Second)))
}

func TestCooldownDisabled(t *testing.T) {
	c := NewCooldown(0)
	t0 := time.Unix(1000, 0)
	assert.True(t, allowed(c, "x", t0))
	assert.True(t, allowed(c, "x", t0))
}

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := NewQueue(8, testLogger())

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Submit(func(ctx context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	assert.ErrorIs(t, q.Submit(func(ctx context.Context) error { return nil }), ErrQueueClosed)
	assert.NoError(t, q.Close(context.Background()))
}

func TestQueueFullDrops(t *testing.T) {
	q := NewQueue(1, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, q.Submit(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, q.Submit(func(ctx context.Context) error { return nil }), ErrQueueFull)

	close(release)
	require.NoError(t, q.Close(context.Background()))
}

func TestQueueCloseCancelsStuckJob(t *testing.T) {
	q := NewQueue(1, testLogger())

	started := make(chan struct{})
	require.NoError(t, q.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, q.Close(ctx))
}

type recordingAction struct {
	name string

	mu   sync.Mutex
	seen []Event
	err  error
}

func (a *recordingAction) Name() string { return a.name }

func (a *recordingAction) Do(ctx context.Context, ev *Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, *ev)
	if a.name == "first" {
		ev.SnapshotPath = "/tmp/x.jpg"
	}
	return a.err
}

func TestDispatcher(t *testing.T) {
	first := &recordingAction{name: "first"}
	second := &recordingAction{name: "second"}
	q := NewQueue(4, testLogger())
	d := NewDispatcher(NewCooldown(time.Minute), q, testLogger(), first, second)

	t0 := time.Unix(2000, 0)
	assert.Equal(t, Queued, d.Dispatch(Event{Key: "Happy", Label: "Happy", Time: t0}))
	assert.Equal(t, Throttled, d.Dispatch(Event{Key: "Happy", Label: "Happy", Time: t0.Add(time.Second)}))
	assert.Equal(t, Queued, d.Dispatch(Event{Key: "Sad", Label: "Sad", Time: t0.Add(time.Second)}))

	require.NoError(t, q.Close(context.Background()))

	require.Len(t, first.seen, 2)
	require.Len(t, second.seen, 2)
	assert.Equal(t, "Happy", second.seen[0].Label)
	assert.Equal(t, "/tmp/x.jpg", second.seen[0].SnapshotPath, "later actions see earlier changes")
	assert.Equal(t, "Sad", second.seen[1].Label)
}

func TestDispatcherStopsActionChainOnError(t *testing.T) {
	first := &recordingAction{name: "broken", err: errors.New("disk full")}
	second := &recordingAction{name: "second"}
	log, hook := test.NewNullLogger()
	q := NewQueue(4, log)
	d := NewDispatcher(NewCooldown(0), q, log, first, second)

	assert.Equal(t, Queued, d.Dispatch(Event{Key: "k"}))
	require.NoError(t, q.Close(context.Background()))

	assert.Len(t, first.seen, 1)
	assert.Empty(t, second.seen)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "disk full")
}

func TestDispatcherDroppedEventKeepsKeyFree(t *testing.T) {
	action := &recordingAction{name: "only"}
	q := NewQueue(1, testLogger())
	d := NewDispatcher(NewCooldown(time.Minute), q, testLogger(), action)

	// Occupy the worker and fill the single queue slot.
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, q.Submit(func(ctx context.Context) error { return nil }))

	t0 := time.Unix(4000, 0)
	assert.Equal(t, Dropped, d.Dispatch(Event{Key: "Happy", Label: "Happy", Time: t0}))

	close(release)
	require.Eventually(t, func() bool { return len(q.jobs) == 0 }, time.Second, time.Millisecond)

	assert.Equal(t, Queued, d.Dispatch(Event{Key: "Happy", Label: "Happy", Time: t0.Add(time.Second)}))
	assert.Equal(t, Throttled, d.Dispatch(Event{Key: "Happy", Label: "Happy", Time: t0.Add(2 * time.Second)}))

	require.NoError(t, q.Close(context.Background()))
	action.mu.Lock()
	defer action.mu.Unlock()
	assert.Len(t, action.seen, 1)
}

func TestDispatcherLoadsCropOnlyWhenAllowed(t *testing.T) {
	action := &recordingAction{name: "only"}
	q := NewQueue(4, testLogger())
	d := NewDispatcher(NewCooldown(time.Minute), q, testLogger(), action)

	loads := 0
	load := func() (image.Image, error) {
		loads++
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}

	t0 := time.Unix(3000, 0)
	assert.Equal(t, Queued, d.Dispatch(Event{Key: "k", Time: t0, LoadCrop: load}))
	assert.Equal(t, Throttled, d.Dispatch(Event{Key: "k", Time: t0.Add(time.Second), LoadCrop: load}))
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, 1, loads)
	require.Len(t, action.seen, 1)
	assert.NotNil(t, action.seen[0].Crop)
	assert.Nil(t, action.seen[0].LoadCrop)
}

func TestDispatcherWithoutActions(t *testing.T) {
	q := NewQueue(1, testLogger())
	defer q.Close(context.Background())

	d := NewDispatcher(NewCooldown(0), q, testLogger())
	assert.Equal(t, Throttled, d.Dispatch(Event{Key: "k"}))
}

func TestSnapshotWritesJPEG(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSnapshot(dir)
	require.NoError(t, err)

	crop := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for i := range crop.Pix {
		crop.Pix[i] = 200
	}
	crop.Set(0, 0, color.Black)

	ev := &Event{Label: "Sur/prise", FrameSeq: 42, Time: time.Unix(0, 0), Crop: crop}
	require.NoError(t, s.Do(context.Background(), ev))
	require.NotEmpty(t, ev.SnapshotPath)
	assert.Contains(t, ev.SnapshotPath, "Sur_prise_000042.jpg")

	f, err := os.Open(ev.SnapshotPath)
	require.NoError(t, err)
	defer f.Close()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 12), img.Bounds())
}

func TestSnapshotWithoutCrop(t *testing.T) {
	s, err := NewSnapshot(t.TempDir())
	require.NoError(t, err)

	ev := &Event{Label: "Happy"}
	require.NoError(t, s.Do(context.Background(), ev))
	assert.Empty(t, ev.SnapshotPath)
}

type fakeEventWriter struct {
	events []store.Event
}

func (w *fakeEventWriter) RecordEvent(ctx context.Context, ev store.Event) (int64, error) {
	w.events = append(w.events, ev)
	return int64(len(w.events)), nil
}

func TestRecorder(t *testing.T) {
	w := &fakeEventWriter{}
	r := &Recorder{Store: w, SessionID: "s1"}

	at := time.Unix(3000, 0)
	require.NoError(t, r.Do(context.Background(), &Event{
		Label: "Anger", Confidence: 0.8, Box: image.Rect(1, 2, 3, 4), FrameSeq: 9, Time: at, SnapshotPath: "a.jpg",
	}))

	require.Len(t, w.events, 1)
	assert.Equal(t, store.Event{
		SessionID: "s1", Label: "Anger", Confidence: 0.8, Box: image.Rect(1, 2, 3, 4),
		FrameSeq: 9, SnapshotPath: "a.jpg", CreatedAt: at,
	}, w.events[0])
}

func TestAnnounceArgs(t *testing.T) {
	assert.Equal(t, []string{"-s", "150", "Happy"}, announceArgs([]string{"-s", "150"}, "Happy"))
	assert.Equal(t, []string{"-t", "Welcome Bob", "-q"}, announceArgs([]string{"-t", "{}", "-q"}, "Welcome Bob"))
}

func TestAnnouncerRunsCommand(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no 'true' binary")
	}

	a := &Announcer{Command: "true"}
	assert.NoError(t, a.Do(context.Background(), &Event{Label: "Happy"}))

	missing := &Announcer{Command: "definitely-not-a-tts-binary"}
	assert.Error(t, missing.Do(context.Background(), &Event{Label: "Happy"}))

	empty := &Announcer{}
	assert.NoError(t, empty.Do(context.Background(), &Event{Label: "Happy"}))
}
