package service

import (
	"sync"
	"time"
)

// EventKind описывает вид перехода.
type EventKind string

const (
	// EventNavigate означает переход внутри приложения.
	EventNavigate EventKind = "navigate"
	// EventRedirect означает полный переход на внешнюю страницу.
	EventRedirect EventKind = "redirect"
)

// Event описывает переход, который должен выполнить интерфейс.
type Event struct {
	Kind   EventKind `json:"kind"`
	Target string    `json:"target"`
	At     time.Time `json:"at"`
}

// Outbox накапливает переходы до тех пор, пока интерфейс их не заберёт.
type Outbox struct {
	mu     sync.Mutex
	events []Event
}

// NewOutbox создаёт пустую очередь переходов.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Navigate реализует admin.Navigator.
func (o *Outbox) Navigate(target string) {
	o.push(EventNavigate, target)
}

// Redirect реализует checkout.Redirector.
func (o *Outbox) Redirect(target string) {
	o.push(EventRedirect, target)
}

func (o *Outbox) push(kind EventKind, target string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, Event{Kind: kind, Target: target, At: time.Now()})
}

// Drain возвращает накопленные переходы и очищает очередь.
func (o *Outbox) Drain() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	events := o.events
	o.events = nil
	if events == nil {
		events = []Event{}
	}
	return events
}
