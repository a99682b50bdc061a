package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusDeliversMatchingEvents(t *testing.T) {
	bus := NewBus()

	all, cancelAll := bus.Subscribe(4)
	defer cancelAll()
	folders, cancelFolders := bus.Subscribe(4, FolderCreated, FolderDeleted)
	defer cancelFolders()

	bus.Publish(Event{Type: ProjectCreated, EntityID: "p1"})
	bus.Publish(Event{Type: FolderCreated, ProjectID: "p1", EntityID: "f1"})

	first := <-all
	require.Equal(t, ProjectCreated, first.Type)
	require.False(t, first.At.IsZero())
	require.Equal(t, FolderCreated, (<-all).Type)

	got := <-folders
	require.Equal(t, "f1", got.EntityID)
	require.Len(t, folders, 0)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Publish(Event{Type: DiagramUpdated})
	bus.Publish(Event{Type: DiagramUpdated})
	require.Equal(t, int64(1), bus.Dropped())
}

func TestCancelClosesChannelOnce(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	require.False(t, open)
	bus.Publish(Event{Type: DiagramDeleted})
}
