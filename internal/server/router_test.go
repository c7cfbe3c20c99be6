package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(delivery *fakeDelivery) (*Router, *Registry) {
	reg := NewRegistry()
	return NewRouter(reg, delivery, zap.NewNop()), reg
}

func TestRouter_BroadcastReachesAllJoined(t *testing.T) {
	// c3 is connected but never joins; it must receive nothing.
	delivery := newFakeDelivery("c1", "c2", "c3")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "bob")
	require.NoError(t, err)
	_, err = reg.Register("c2", "amy")
	require.NoError(t, err)

	require.NoError(t, router.Broadcast("c1", "hi"))

	for _, connID := range []string{"c1", "c2"} {
		events := delivery.events(connID)
		require.Len(t, events, 1, "conn %s", connID)
		require.Equal(t, EventReceiveMessage, events[0].Event)

		msg := decodeData[Message](t, events[0])
		assert.Equal(t, "bob", msg.Sender)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, KindBroadcast, msg.Kind)
		assert.Empty(t, msg.Recipient)
		assert.NotZero(t, msg.ID)
		assert.NotEmpty(t, msg.Timestamp)
	}

	assert.Empty(t, delivery.events("c3"), "unjoined connection must not receive broadcasts")
}

func TestRouter_BroadcastSilentFailures(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c2", "amy")
	require.NoError(t, err)

	// No session yet: dropped without any outbound event.
	assert.ErrorIs(t, router.Broadcast("c1", "hello"), ErrNoSession)
	assert.Empty(t, delivery.events("c1"))
	assert.Empty(t, delivery.events("c2"))

	// Empty text: dropped the same way.
	_, err = reg.Register("c1", "bob")
	require.NoError(t, err)
	assert.ErrorIs(t, router.Broadcast("c1", ""), ErrEmptyMessage)
	assert.Empty(t, delivery.events("c2"))
}

func TestRouter_BroadcastClearsTyping(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "bob")
	require.NoError(t, err)
	_, err = reg.Register("c2", "amy")
	require.NoError(t, err)

	require.NoError(t, router.SetTyping("c1", true))
	sess, _ := reg.Session("c1")
	require.True(t, sess.Typing)

	require.NoError(t, router.Broadcast("c1", "done typing"))
	assert.False(t, sess.Typing, "a broadcast implicitly stops typing")
}

func TestRouter_BroadcastMessageID(t *testing.T) {
	delivery := newFakeDelivery("c1")
	router, reg := newTestRouter(delivery)

	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	router.now = func() time.Time { return at }

	_, err := reg.Register("c1", "bob")
	require.NoError(t, err)
	require.NoError(t, router.Broadcast("c1", "hi"))

	msg := decodeData[Message](t, delivery.events("c1")[0])
	assert.Equal(t, at.UnixMilli(), msg.ID)
	assert.Equal(t, at.Format(time.RFC3339), msg.Timestamp)
}

func TestRouter_SetTypingRelaysWithoutDeduplication(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "bob")
	require.NoError(t, err)
	_, err = reg.Register("c2", "amy")
	require.NoError(t, err)

	// Two starts in a row with no stop in between relay as two events.
	require.NoError(t, router.SetTyping("c1", true))
	require.NoError(t, router.SetTyping("c1", true))

	events := delivery.events("c2")
	require.Len(t, events, 2)
	for _, env := range events {
		require.Equal(t, EventUserTyping, env.Event)
		notice := decodeData[TypingNotice](t, env)
		assert.Equal(t, "bob", notice.Username)
		assert.True(t, notice.IsTyping)
	}

	assert.Empty(t, delivery.events("c1"), "typing is never echoed to the sender")
}

func TestRouter_SetTypingWithoutSession(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, _ := newTestRouter(delivery)

	assert.ErrorIs(t, router.SetTyping("c1", true), ErrNoSession)
	assert.Empty(t, delivery.events("c2"))
}

func TestRouter_SendPrivateDeliversExactlyTwice(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2", "c3")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "alice")
	require.NoError(t, err)
	_, err = reg.Register("c2", "bob")
	require.NoError(t, err)
	_, err = reg.Register("c3", "carol")
	require.NoError(t, err)

	require.NoError(t, router.SendPrivate("c1", "bob", "psst"))

	for _, connID := range []string{"c1", "c2"} {
		events := delivery.events(connID)
		require.Len(t, events, 1, "conn %s", connID)
		require.Equal(t, EventReceivePrivateMessage, events[0].Event)

		msg := decodeData[Message](t, events[0])
		assert.Equal(t, "alice", msg.Sender)
		assert.Equal(t, "bob", msg.Recipient)
		assert.Equal(t, "psst", msg.Text)
		assert.Equal(t, KindPrivate, msg.Kind)
	}

	assert.Empty(t, delivery.events("c3"), "third parties must see nothing")
}

func TestRouter_SendPrivateUnknownRecipient(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, router.SendPrivate("c1", "ghost", "anyone?"), ErrRecipientNotFound)
	assert.Empty(t, delivery.events("c1"))
	assert.Empty(t, delivery.events("c2"))
}

func TestRouter_SendPrivateValidation(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2")
	router, reg := newTestRouter(delivery)

	assert.ErrorIs(t, router.SendPrivate("c1", "bob", "hi"), ErrNoSession)

	_, err := reg.Register("c1", "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, router.SendPrivate("c1", "bob", ""), ErrEmptyMessage)
}

func TestRouter_SendPrivateDuplicateNamesFirstMatch(t *testing.T) {
	delivery := newFakeDelivery("c1", "c2", "c3")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "alice")
	require.NoError(t, err)
	_, err = reg.Register("c2", "sam")
	require.NoError(t, err)
	_, err = reg.Register("c3", "sam")
	require.NoError(t, err)

	require.NoError(t, router.SendPrivate("c1", "sam", "hello"))

	assert.Len(t, delivery.events("c2"), 1, "earliest-joined duplicate receives the message")
	assert.Empty(t, delivery.events("c3"))
	assert.Len(t, delivery.events("c1"), 1, "sender gets the echo")
}

func TestRouter_SendPrivateToSelfDeliversTwice(t *testing.T) {
	delivery := newFakeDelivery("c1")
	router, reg := newTestRouter(delivery)

	_, err := reg.Register("c1", "alice")
	require.NoError(t, err)

	require.NoError(t, router.SendPrivate("c1", "alice", "note to self"))

	// Recipient copy plus sender echo land on the same connection.
	assert.Len(t, delivery.events("c1"), 2)
}
