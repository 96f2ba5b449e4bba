package ws

import (
	"errors"
	"testing"
)

func TestClient_SendQueues(t *testing.T) {
	client := NewClient(nil, 2)

	if err := client.Send([]byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-client.SendChan():
		if string(got) != "a" {
			t.Errorf("expected 'a', got %q", got)
		}
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestClient_FullQueueClosesClient(t *testing.T) {
	client := NewClient(nil, 1)

	if err := client.Send([]byte("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Send([]byte("b")); !errors.Is(err, ErrSendQueueFull) {
		t.Errorf("expected ErrSendQueueFull, got %v", err)
	}
	if !client.IsClosed() {
		t.Error("expected client to be closed after overflow")
	}
}

func TestClient_SendAfterCloseIsNoop(t *testing.T) {
	client := NewClient(nil, 0)

	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if err := client.Send([]byte("late")); err != nil {
		t.Errorf("expected send after close to be a no-op, got %v", err)
	}

	if _, ok := <-client.SendChan(); ok {
		t.Error("expected send channel to be closed")
	}
}

func TestClient_DefaultBuffer(t *testing.T) {
	client := NewClient(nil, 0)
	if cap(client.send) != DefaultSendBuffer {
		t.Errorf("expected buffer %d, got %d", DefaultSendBuffer, cap(client.send))
	}
}
