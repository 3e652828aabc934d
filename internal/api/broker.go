package api

import (
    "sync"
)

// Event is a broadcast message for one vehicle's observers.
type Event struct {
    Type string
    Data map[string]any
}

// Broker fans vehicle events out to in-process subscribers (SSE streams).
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // vehicleId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(vehicleID string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[vehicleID] == nil { b.subs[vehicleID] = map[chan Event]struct{}{} }
    b.subs[vehicleID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(vehicleID string, ch chan Event) {
    b.mu.Lock()
    if m := b.subs[vehicleID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, vehicleID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(vehicleID string, evt Event) {
    b.mu.Lock()
    m := b.subs[vehicleID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
