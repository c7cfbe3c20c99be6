package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeDelivery records frames per connection so router and presence tests can
// assert exact fan-out without a network. The connection list stands in for
// the hub's client map and may include connections that never joined.
type fakeDelivery struct {
	conns  []string
	frames map[string][]Envelope
}

func newFakeDelivery(conns ...string) *fakeDelivery {
	return &fakeDelivery{
		conns:  conns,
		frames: make(map[string][]Envelope),
	}
}

func (f *fakeDelivery) Deliver(connID string, frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic("fakeDelivery: undecodable frame: " + err.Error())
	}
	f.frames[connID] = append(f.frames[connID], env)
}

func (f *fakeDelivery) DeliverToAll(frame []byte, exceptConnID string) {
	for _, connID := range f.conns {
		if exceptConnID != "" && connID == exceptConnID {
			continue
		}
		f.Deliver(connID, frame)
	}
}

func (f *fakeDelivery) events(connID string) []Envelope {
	return f.frames[connID]
}

func decodeData[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
