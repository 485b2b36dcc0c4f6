package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

func TestBus_MemoryFanOutInOrder(t *testing.T) {
	bus, err := NewBus(Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := bus.Subscribe(ctx, "conv-1")
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx, "conv-1")
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "conv-2")
	require.NoError(t, err)

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, bus.Publish(Event{
			Kind:           KindMessageAppended,
			ConversationID: "conv-1",
			Message:        &chat.Message{ID: text, Role: chat.RoleUser, Content: text},
			At:             time.Unix(int64(i), 0),
		}))
	}

	for _, ch := range []<-chan Event{a, b} {
		for _, want := range []string{"one", "two", "three"} {
			select {
			case ev := <-ch:
				require.Equal(t, KindMessageAppended, ev.Kind)
				require.Equal(t, want, ev.Message.Content)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for %s", want)
			}
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("unexpected event on other conversation: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_RejectsEventWithoutConversation(t *testing.T) {
	bus, err := NewBus(Settings{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	require.Error(t, bus.Publish(Event{Kind: KindPhaseChanged}))
}

func TestBus_SubscriptionEndsWithContext(t *testing.T) {
	bus, err := NewBus(Settings{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "conv")
	require.NoError(t, err)
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestNewBus_Validation(t *testing.T) {
	_, err := NewBus(Settings{Driver: "redis"})
	require.Error(t, err)
	_, err = NewBus(Settings{Driver: "kafka"})
	require.Error(t, err)
	require.Equal(t, "chat:abc", Topic("abc"))
}
