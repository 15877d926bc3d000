package database

import (
	"testing"

	"notification_scheduler/internal/domain/subscriber"
)

func TestDecodeChange(t *testing.T) {
	ev, err := DecodeChange(`{"collection":"groups","operation":"deleted","id":"g1"}`)
	if err != nil {
		t.Fatalf("DecodeChange() error = %v", err)
	}
	want := subscriber.ChangeEvent{Collection: subscriber.CollectionGroups, Operation: subscriber.OperationDeleted, ID: "g1"}
	if ev.Collection != want.Collection || ev.Operation != want.Operation || ev.ID != want.ID || ev.Resync {
		t.Fatalf("DecodeChange() = %+v, want %+v", ev, want)
	}
}

func TestDecodeChange_Invalid(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":           `nope`,
		"missing id":         `{"collection":"groups","operation":"created"}`,
		"unknown collection": `{"collection":"orders","operation":"created","id":"1"}`,
		"unknown operation":  `{"collection":"subscribers","operation":"truncated","id":"1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeChange(raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewPostgresChangeFeed_DefaultChannel(t *testing.T) {
	f := NewPostgresChangeFeed("postgres://localhost/x", "", nil)
	if f.channel != DefaultChangeChannel {
		t.Fatalf("channel = %q, want %q", f.channel, DefaultChangeChannel)
	}
}
