package progress

import (
	"math"
	"sync"
	"sync/atomic"
)

// Notification announces that the engine finished one item.
type Notification struct {
	Path string `json:"path"`
}

// Bus fans notifications out to subscribers.
type Bus struct {
	mutex sync.RWMutex
	subs  map[*Subscription]struct{}
}

// NewBus returns a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscription receives notifications until closed.
type Subscription struct {
	bus  *Bus
	ch   chan Notification
	done chan struct{}
	once sync.Once
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:  b,
		ch:   make(chan Notification, 64),
		done: make(chan struct{}),
	}
	b.mutex.Lock()
	b.subs[s] = struct{}{}
	b.mutex.Unlock()
	return s
}

// Publish delivers n to every open subscription.
// It waits for slow subscribers but never for closed ones.
func (b *Bus) Publish(n Notification) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- n:
		case <-s.done:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subs)
}

// C returns the channel notifications arrive on.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.mutex.Lock()
		delete(s.bus.subs, s)
		s.bus.mutex.Unlock()
	})
}

// Consumer turns bus notifications into completion percentages.
type Consumer struct {
	bus *Bus
}

// NewConsumer returns a Consumer listening on bus.
func NewConsumer(bus *Bus) *Consumer {
	return &Consumer{bus: bus}
}

// Observation tracks one run's progress.
type Observation struct {
	total   int
	sub     *Subscription
	out     chan float64
	count   atomic.Int64
	percent atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Observe subscribes and starts counting from zero towards total.
// The returned sequence starts with 0 and ends once total notifications
// arrived or Stop is called.
func (c *Consumer) Observe(total int) *Observation {
	capacity := 1
	if total > 0 {
		capacity = total + 1
	}
	o := &Observation{
		total: total,
		sub:   c.bus.Subscribe(),
		out:   make(chan float64, capacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go o.listen()
	return o
}

func (o *Observation) listen() {
	defer close(o.done)
	defer close(o.out)
	defer o.sub.Close()

	o.emit(0)
	if o.total <= 0 {
		return
	}

	for {
		select {
		case <-o.stop:
			o.drain()
			return
		case <-o.sub.C():
			if o.record() {
				return
			}
		}
	}
}

// drain counts notifications already buffered when Stop was called.
func (o *Observation) drain() {
	for {
		select {
		case <-o.sub.C():
			if o.record() {
				return
			}
		default:
			return
		}
	}
}

// record counts one notification and reports whether total was reached.
func (o *Observation) record() bool {
	n := o.count.Add(1)
	o.emit(Percent(int(n), o.total))
	return int(n) >= o.total
}

// emit never blocks: out holds one slot per possible value.
func (o *Observation) emit(p float64) {
	o.percent.Store(math.Float64bits(p))
	o.out <- p
}

// Percentages returns the sequence of computed percentages.
func (o *Observation) Percentages() <-chan float64 {
	return o.out
}

// Percent returns the most recent percentage.
func (o *Observation) Percent() float64 {
	return math.Float64frombits(o.percent.Load())
}

// Count returns the number of notifications received.
func (o *Observation) Count() int {
	return int(o.count.Load())
}

// Total returns the number of items being observed.
func (o *Observation) Total() int {
	return o.total
}

// Done is closed once the observation has finished and unsubscribed.
func (o *Observation) Done() <-chan struct{} {
	return o.done
}

// Stop unsubscribes and waits for the listener to exit.
func (o *Observation) Stop() {
	o.stopOnce.Do(func() {
		close(o.stop)
		o.sub.Close()
	})
	<-o.done
}

// Percent returns count/total*100, or 0 when total is not positive.
func Percent(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
