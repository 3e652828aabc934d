package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// EventBroker fans vehicle events out to observers. The in-memory Broker
// covers a single process; RedisBroker spans instances.
type EventBroker interface {
    Subscribe(vehicleID string) chan Event
    Unsubscribe(vehicleID string, ch chan Event)
    Publish(vehicleID string, evt Event)
}

// RedisBroker implements EventBroker over Redis Pub/Sub.
type RedisBroker struct {
    rdb *redis.Client

    mu   sync.Mutex
    subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(vehicleID string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(vehicleID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(vehicleID string, ch chan Event) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    // closing the PubSub ends ps.Channel(), which closes ch in the pump
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(vehicleID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(vehicleID), data).Err()
}

func (b *RedisBroker) chanName(vehicleID string) string { return "vehicle:" + vehicleID }
