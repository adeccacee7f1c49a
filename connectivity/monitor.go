// Package connectivity provides the observable online/offline signal
// the engine consumes.
//
// Monitor is a plain boolean with edge notification; the platform layer
// feeds it from whatever reachability source it has (OS callbacks, a
// probe loop, the websocket connection state). The engine subscribes
// and reacts only to false→true edges.
package connectivity

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Monitor is a thread-safe implementation of interfaces.Connectivity.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online: online,
		subs:   make(map[int]func(bool)),
	}
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a state change and notifies subscribers on every edge.
// Setting the current value again is a no-op.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]func(bool), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"online": online,
	}).Info("Connectivity changed")

	for _, h := range handlers {
		h(online)
	}
}

// Subscribe registers an edge callback and returns its cancel func.
func (m *Monitor) Subscribe(onChange func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = onChange

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
