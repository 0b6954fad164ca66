package presence

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

func TestDecodeRemoteSkipsOwnPublications(t *testing.T) {
	ps := NewRedisPubSub(nil, zap.NewNop())

	own, err := json.Marshal(redisPayload{Origin: ps.origin, Event: EventRoomState, Data: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, _, ok := ps.decodeRemote(own); ok {
		t.Fatal("own publication must not be redelivered locally")
	}

	remote, err := json.Marshal(redisPayload{Origin: "other-instance", Event: EventRoomState, Data: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	event, data, ok := ps.decodeRemote(remote)
	if !ok {
		t.Fatal("remote publication must be delivered")
	}
	if event != EventRoomState || string(data) != `{"a":1}` {
		t.Fatalf("unexpected decode: %s %s", event, data)
	}
}

func TestDecodeRemoteDropsMalformedPayload(t *testing.T) {
	ps := NewRedisPubSub(nil, zap.NewNop())
	if _, _, ok := ps.decodeRemote([]byte("not json")); ok {
		t.Fatal("malformed payload must be dropped")
	}
}
