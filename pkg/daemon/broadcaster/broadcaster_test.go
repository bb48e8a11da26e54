package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func payload(t *testing.T, progress float64) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{"progress": progress})
	require.NoError(t, err)
	return s
}

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("scan-progress", "p1")
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "scan-progress", sub.Event)
	assert.Equal(t, "p1", sub.ProjectID)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_Publish_MatchesEventAndProject(t *testing.T) {
	b := New()
	defer b.Close()

	progress := b.Subscribe("scan-progress", "p1")
	other := b.Subscribe("scan-progress", "p2")
	logs := b.Subscribe("scan-log", "p1")
	all := b.Subscribe("scan-progress", "")

	n := b.Publish("scan-progress", "p1", payload(t, 42))
	assert.Equal(t, 2, n)

	for _, sub := range []*Subscriber{progress, all} {
		select {
		case ev := <-sub.Events:
			assert.InDelta(t, 42, ev.GetFields()["progress"].GetNumberValue(), 0)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("expected event not received")
		}
	}
	for _, sub := range []*Subscriber{other, logs} {
		select {
		case <-sub.Events:
			t.Fatal("unexpected event")
		default:
		}
	}
}

func TestBroadcaster_PublishKeepsOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("scan-progress", "p1")
	for i := range 10 {
		b.Publish("scan-progress", "p1", payload(t, float64(i)))
	}
	for i := range 10 {
		ev := <-sub.Events
		assert.InDelta(t, float64(i), ev.GetFields()["progress"].GetNumberValue(), 0)
	}
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	b.Subscribe("scan-log", "p1")
	for range subscriberBuffer + 5 {
		b.Publish("scan-log", "p1", payload(t, 1))
	}
	assert.Equal(t, uint64(5), b.Dropped())
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("scan-done", "p1")
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, b.SubscriberCount())
	assert.Zero(t, b.Publish("scan-done", "p1", payload(t, 1)))
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub := b.Subscribe("scan-done", "p1")
	b.Close()
	b.Close()

	_, ok := <-sub.Events
	assert.False(t, ok)
	assert.Nil(t, b.Subscribe("scan-done", "p1"))
}
