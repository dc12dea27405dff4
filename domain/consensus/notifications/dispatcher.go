package notifications

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/queue"
	"github.com/pkg/errors"
)

// ErrDispatcherNotRunning is returned when notifications are sent to, or
// awaited on, a dispatcher that was not started or was stopped.
var ErrDispatcherNotRunning = errors.New("notification dispatcher is not running")

// queueBufferSize is the size of the channel buffer of the delivery queue.
// The queue itself is unbounded.
const queueBufferSize = 100

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	callback  Callback
	interests map[NotificationType]struct{}
}

func (s *subscription) wants(notificationType NotificationType) bool {
	if len(s.interests) == 0 {
		return true
	}
	_, ok := s.interests[notificationType]
	return ok
}

// queuedNotification is a notification together with the subscriptions it
// was addressed to when it was queued.
type queuedNotification struct {
	notification *Notification
	recipients   []SubscriptionID
}

// drainBarrier is closed by the delivery goroutine once every item queued
// before it was delivered.
type drainBarrier chan struct{}

// Dispatcher delivers notifications to subscribers on a dedicated
// goroutine, in the order they were sent. Sending never blocks on
// subscribers.
type Dispatcher struct {
	started uint32
	stopped uint32

	subscriptionCounter uint64

	subscriptionsLock sync.RWMutex
	subscriptions     map[SubscriptionID]*subscription

	queue *queue.ConcurrentQueue

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher returns a new, not yet started, Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscriptions: make(map[SubscriptionID]*subscription),
		queue:         queue.NewConcurrentQueue(queueBufferSize),
		quit:          make(chan struct{}),
	}
}

// Start starts the delivery goroutine.
func (d *Dispatcher) Start() {
	if !atomic.CompareAndSwapUint32(&d.started, 0, 1) {
		return
	}

	d.queue.Start()
	d.wg.Add(1)
	spawn("Dispatcher.deliveryHandler", d.deliveryHandler)
}

// Stop stops the delivery goroutine. Notifications still in the queue are
// not delivered.
func (d *Dispatcher) Stop() {
	if !atomic.CompareAndSwapUint32(&d.stopped, 0, 1) {
		return
	}

	close(d.quit)
	d.wg.Wait()
	if atomic.LoadUint32(&d.started) == 1 {
		d.queue.Stop()
	}
}

// Subscribe registers callback to receive the notifications of the given
// types, or of every type if none is given.
func (d *Dispatcher) Subscribe(callback Callback, interests ...NotificationType) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&d.subscriptionCounter, 1))

	sub := &subscription{callback: callback}
	if len(interests) > 0 {
		sub.interests = make(map[NotificationType]struct{}, len(interests))
		for _, interest := range interests {
			sub.interests[interest] = struct{}{}
		}
	}

	d.subscriptionsLock.Lock()
	defer d.subscriptionsLock.Unlock()
	d.subscriptions[id] = sub
	return id
}

// Unsubscribe removes a subscription. Notifications already queued for it
// are skipped. Unknown IDs are ignored.
func (d *Dispatcher) Unsubscribe(id SubscriptionID) {
	d.subscriptionsLock.Lock()
	defer d.subscriptionsLock.Unlock()
	delete(d.subscriptions, id)
}

// Notify queues the given notifications for delivery, in order, to the
// subscriptions registered at the time of the call.
func (d *Dispatcher) Notify(notifications ...*Notification) error {
	for _, notification := range notifications {
		item := &queuedNotification{
			notification: notification,
			recipients:   d.recipients(notification.Type),
		}
		if len(item.recipients) == 0 {
			continue
		}
		if !d.enqueue(item) {
			return ErrDispatcherNotRunning
		}
	}
	return nil
}

func (d *Dispatcher) recipients(notificationType NotificationType) []SubscriptionID {
	d.subscriptionsLock.RLock()
	defer d.subscriptionsLock.RUnlock()

	recipients := make([]SubscriptionID, 0, len(d.subscriptions))
	for id, sub := range d.subscriptions {
		if sub.wants(notificationType) {
			recipients = append(recipients, id)
		}
	}
	sortSubscriptionIDs(recipients)
	return recipients
}

// enqueue returns false if the dispatcher is not running. It only waits for the
// queue to move item into its overflow buffer.
func (d *Dispatcher) enqueue(item interface{}) bool {
	if atomic.LoadUint32(&d.started) == 0 || atomic.LoadUint32(&d.stopped) == 1 {
		return false
	}
	select {
	case d.queue.ChanIn() <- item:
		return true
	case <-d.quit:
		return false
	}
}

// WaitForDrain blocks until every notification queued before the call was
// delivered, or ctx is done.
func (d *Dispatcher) WaitForDrain(ctx context.Context) error {
	barrier := make(drainBarrier)
	if !d.enqueue(barrier) {
		return ErrDispatcherNotRunning
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return ErrDispatcherNotRunning
	}
}

// deliveryHandler must be run as a goroutine.
func (d *Dispatcher) deliveryHandler() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.queue.ChanOut():
			switch item := item.(type) {
			case *queuedNotification:
				d.deliver(item)
			case drainBarrier:
				close(item)
			}
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) deliver(item *queuedNotification) {
	for _, id := range item.recipients {
		d.subscriptionsLock.RLock()
		sub, ok := d.subscriptions[id]
		d.subscriptionsLock.RUnlock()
		if !ok {
			log.Tracef("Skipping %s for removed subscription %d", item.notification.Type, id)
			continue
		}
		sub.callback(item.notification)
	}
}

func sortSubscriptionIDs(ids []SubscriptionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
