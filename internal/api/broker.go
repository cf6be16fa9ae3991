package api

import (
    "sync"
)

// Topics carried by the event broker.
const (
    TopicCalls    = "calls"
    TopicPayments = "payments"
)

type Event struct {
    ID   string         `json:"id,omitempty"`
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// EventBroker fans out events to live subscribers (SSE and WebSocket feeds).
type EventBroker interface {
    Subscribe(topic string) chan Event
    Unsubscribe(topic string, ch chan Event)
    Publish(topic string, evt Event)
}

// Broker is the in-process EventBroker.
type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan Event]struct{} // topic -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[topic] == nil { b.subs[topic] = map[chan Event]struct{}{} }
    b.subs[topic][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[topic]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, topic) }
    close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(topic string, evt Event) {
    b.mu.Lock()
    m := b.subs[topic]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
