package lifecycle

import (
	"sync"

	"github.com/quicknotes/offline-hub/internal/cache"
)

// EventType 对应页面可观察到的注册事件。
type EventType string

const (
	EventUpdateFound      EventType = "updatefound"
	EventStateChange      EventType = "statechange"
	EventControllerChange EventType = "controllerchange"
)

// Event describes one registration notification. ClientID is only set on
// controllerchange.
type Event struct {
	Type       EventType
	InstanceID string
	Version    cache.VersionTag
	State      State
	ClientID   string
}

// subscriber 维护一个无界有序队列，发布方永不阻塞。
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
