package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	messages []*pubsub.Message
	id       string
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg *pubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return fakeResult{id: f.id, err: f.err}
}

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) { return r.id, r.err }

func TestEventPublisherWrapsPayload(t *testing.T) {
	fake := &fakePublisher{id: "msg-1"}
	pub := newEventPublisher(fake)
	pub.clock = func() time.Time { return time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC) }
	pub.newID = func() string { return "evt-1" }

	id, err := pub.Publish(context.Background(), "visit.approved", "t1", map[string]string{"visitId": "v1"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.Len(t, fake.messages, 1)
	msg := fake.messages[0]
	assert.Equal(t, map[string]string{AttrEventType: "visit.approved", AttrTenantID: "t1"}, msg.Attributes)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, "visit.approved", env.EventType)
	assert.Equal(t, "t1", env.TenantID)
	assert.JSONEq(t, `{"visitId":"v1"}`, string(env.Data))
}

func TestEventPublisherSurfacesPublishError(t *testing.T) {
	fake := &fakePublisher{err: errors.New("deadline exceeded")}
	_, err := newEventPublisher(fake).Publish(context.Background(), "visit.approved", "t1", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing visit.approved")
}

func TestEventPublisherRejectsUnencodablePayload(t *testing.T) {
	fake := &fakePublisher{}
	_, err := newEventPublisher(fake).Publish(context.Background(), "visit.approved", "t1", make(chan int))
	require.Error(t, err)
	assert.Empty(t, fake.messages)
}

func TestTopicResourceName(t *testing.T) {
	name, err := topicResourceName("p1", "visit-events")
	require.NoError(t, err)
	assert.Equal(t, "projects/p1/topics/visit-events", name)

	name, err = topicResourceName("", "projects/p2/topics/x")
	require.NoError(t, err)
	assert.Equal(t, "projects/p2/topics/x", name)

	_, err = topicResourceName("p1", " ")
	assert.Error(t, err)
	_, err = topicResourceName("", "visit-events")
	assert.Error(t, err)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.VisitEvents())
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
