package mirror

import (
	"context"
	"encoding/json"

	"github.com/jabolina/relt/pkg/relt"
	"github.com/prometheus/common/log"

	"github.com/jabolina/go-rbd/pkg/rbd/types"
)

// A notifier backed by a reliable broadcast exchange, so
// watchers on other processes observe mirror state changes for
// the pool. Each pool maps to one exchange, named after the
// pool.
type ReliableNotifier struct {
	// Notifier logger.
	logger types.Logger

	// Reliable transport.
	relt *relt.Relt

	// Exchange the pool events are published to.
	exchange relt.GroupAddress

	// Channel to publish the receiving events.
	producer chan types.ImageUpdatedEvent

	// The notifier context.
	context context.Context

	// The finish function to closing the notifier.
	finish context.CancelFunc
}

func NewReliableNotifier(name, poolName string, logger types.Logger) (*ReliableNotifier, error) {
	conf := relt.DefaultReltConfiguration()
	conf.Name = name
	conf.Exchange = relt.GroupAddress(poolName)
	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, err
	}
	ctx, done := context.WithCancel(context.Background())
	n := &ReliableNotifier{
		logger:   logger,
		relt:     r,
		exchange: conf.Exchange,
		producer: make(chan types.ImageUpdatedEvent),
		context:  ctx,
		finish:   done,
	}
	go n.poll()
	return n, nil
}

func (n *ReliableNotifier) Publish(event types.ImageUpdatedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("failed marshalling event %#v. %v", event, err)
		return err
	}

	m := relt.Send{
		Address: n.exchange,
		Data:    data,
	}
	if err = n.relt.Broadcast(m); err != nil {
		n.logger.Errorf("failed sending %#v. %v", m, err)
		return err
	}
	return nil
}

func (n *ReliableNotifier) Listen() <-chan types.ImageUpdatedEvent {
	return n.producer
}

func (n *ReliableNotifier) Close() {
	defer close(n.producer)
	n.relt.Close()
	n.finish()
}

func (n *ReliableNotifier) poll() {
	for {
		select {
		case recv := <-n.relt.Consume():
			n.consume(recv)
		case <-n.context.Done():
			return
		}
	}
}

func (n *ReliableNotifier) consume(recv relt.Recv) {
	if recv.Error != nil {
		n.logger.Errorf("failed consuming event. %v", recv.Error)
		return
	}

	if recv.Data == nil {
		return
	}

	var event types.ImageUpdatedEvent
	if err := json.Unmarshal(recv.Data, &event); err != nil {
		n.logger.Errorf("failed unmarshalling event. %v", err)
		return
	}
	n.producer <- event
}
