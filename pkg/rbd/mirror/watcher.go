package mirror

import (
	"sync"

	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// Publish an image updated event through the notifier. This is
// a blocking call, callers running on a completion callback
// must trampoline it through the scheduler. A nil notifier
// means nobody watches the pool and the event is dropped.
func NotifyImageUpdated(notifier types.Notifier, state types.MirrorImageState,
	imageID, globalImageID string) error {
	if notifier == nil {
		return nil
	}
	return notifier.Publish(types.ImageUpdatedEvent{
		State:         state,
		ImageID:       imageID,
		GlobalImageID: globalImageID,
	})
}

// A process local notifier. Every listener receives every
// event published after it subscribed. The create entry points
// do not fall back to it: with a nil notifier the event is
// dropped.
type LocalNotifier struct {
	mutex     sync.Mutex
	listeners []chan types.ImageUpdatedEvent
	closed    bool
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{}
}

func (n *LocalNotifier) Publish(event types.ImageUpdatedEvent) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.closed {
		return nil
	}
	for _, listener := range n.listeners {
		listener <- event
	}
	return nil
}

func (n *LocalNotifier) Listen() <-chan types.ImageUpdatedEvent {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	listener := make(chan types.ImageUpdatedEvent, 128)
	n.listeners = append(n.listeners, listener)
	return listener
}

func (n *LocalNotifier) Close() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, listener := range n.listeners {
		close(listener)
	}
	n.listeners = nil
}
