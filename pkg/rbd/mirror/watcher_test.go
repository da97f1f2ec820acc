package mirror_test

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/jabolina/go-rbd/pkg/rbd/mirror"
	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

func TestLocalNotifier_FansOutToEveryListener(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifier := mirror.NewLocalNotifier()
	defer notifier.Close()

	first := notifier.Listen()
	second := notifier.Listen()

	err := mirror.NotifyImageUpdated(notifier, types.MirrorImageEnabled, "I1", "G1")
	if err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	for _, listener := range []<-chan types.ImageUpdatedEvent{first, second} {
		event := <-listener
		if event.ImageID != "I1" || event.GlobalImageID != "G1" ||
			event.State != types.MirrorImageEnabled {
			t.Errorf("unexpected event %+v", event)
		}
	}
}

func TestLocalNotifier_CloseEndsListeners(t *testing.T) {
	defer goleak.VerifyNone(t)

	notifier := mirror.NewLocalNotifier()
	listener := notifier.Listen()
	notifier.Close()

	if _, ok := <-listener; ok {
		t.Error("listener channel should be closed")
	}

	// Publishing after close is a quiet no-op.
	if err := mirror.NotifyImageUpdated(notifier, types.MirrorImageEnabled, "I1", "G1"); err != nil {
		t.Errorf("notify after close should not fail: %v", err)
	}
}

func TestNotifyImageUpdated_NilNotifierIsNoOp(t *testing.T) {
	if err := mirror.NotifyImageUpdated(nil, types.MirrorImageEnabled, "I1", "G1"); err != nil {
		t.Errorf("nil notifier should be a no-op: %v", err)
	}
}
