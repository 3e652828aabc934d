package api

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "navtrack/internal/model"
)

func dialWS(t *testing.T, s *Server) (*websocket.Conn, func()) {
    t.Helper()
    srv := httptest.NewServer(http.HandlerFunc(s.WSHandler))
    url := "ws" + strings.TrimPrefix(srv.URL, "http")
    conn, _, err := websocket.DefaultDialer.Dial(url, nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    return conn, func() { _ = conn.Close(); srv.Close() }
}

func sendWS(t *testing.T, conn *websocket.Conn, typ string, v any) {
    t.Helper()
    payload, _ := json.Marshal(v)
    if err := conn.WriteJSON(wsMessage{Type: typ, Payload: payload}); err != nil {
        t.Fatalf("write %s: %v", typ, err)
    }
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsMessage {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    _ = conn.SetReadDeadline(deadline)
    for time.Now().Before(deadline) {
        var msg wsMessage
        if err := conn.ReadJSON(&msg); err != nil {
            t.Fatalf("read: %v", err)
        }
        if msg.Type == typ { return msg }
    }
    t.Fatalf("no %s message before deadline", typ)
    return wsMessage{}
}

func TestWSPositionRoundTrip(t *testing.T) {
    s := newTestServer(t)
    conn, done := dialWS(t, s)
    defer done()

    sendWS(t, conn, "position", model.PositionReport{VehicleID: "veh_ws", Lat: 37.7749, Lng: -122.4194, SpeedKmh: f64(25)})
    msg := readUntil(t, conn, "position")

    var v model.VehicleState
    if err := json.Unmarshal(msg.Payload, &v); err != nil { t.Fatalf("decode: %v", err) }
    if v.ID != "veh_ws" || v.Position.Lat != 37.7749 {
        t.Fatalf("unexpected broadcast: %+v", v)
    }
}

func TestWSUnknownTypeIgnoredAndBadPayloadErrors(t *testing.T) {
    s := newTestServer(t)
    conn, done := dialWS(t, s)
    defer done()

    // unknown tag is ignored without closing the connection
    sendWS(t, conn, "bogus", map[string]any{"x": 1})

    // malformed position produces an error frame
    if err := conn.WriteJSON(wsMessage{Type: "position", Payload: []byte(`{"vehicleId":""}`)}); err != nil {
        t.Fatalf("write: %v", err)
    }
    msg := readUntil(t, conn, "error")
    if len(msg.Payload) == 0 { t.Fatal("error frame missing payload") }
}

func TestWSPositionReachesBrokerSubscribers(t *testing.T) {
    s := newTestServer(t)
    ch := s.Broker.Subscribe("veh_ws2")
    defer s.Broker.Unsubscribe("veh_ws2", ch)

    conn, done := dialWS(t, s)
    defer done()
    sendWS(t, conn, "position", model.PositionReport{VehicleID: "veh_ws2", Lat: 37.7749, Lng: -122.4194})

    select {
    case evt := <-ch:
        if evt.Type != "position" { t.Fatalf("got type %s, want position", evt.Type) }
    case <-time.After(500 * time.Millisecond):
        t.Fatal("SSE subscribers did not see the WS-reported position")
    }
}

func TestWSSubscribeCloseWhilePublishing(t *testing.T) {
    s := newTestServer(t)
    srv := httptest.NewServer(http.HandlerFunc(s.WSHandler))
    defer srv.Close()
    url := "ws" + strings.TrimPrefix(srv.URL, "http")

    // churn connections while the broker floods their subscription; the
    // bridge teardown must never send on the closed connection channel
    for i := 0; i < 30; i++ {
        conn, _, err := websocket.DefaultDialer.Dial(url, nil)
        if err != nil { t.Fatalf("dial: %v", err) }
        payload, _ := json.Marshal(map[string]any{"vehicleId": "veh_churn"})
        if err := conn.WriteJSON(wsMessage{Type: "subscribe", Payload: payload}); err != nil {
            t.Fatalf("subscribe: %v", err)
        }

        stop := make(chan struct{})
        pubDone := make(chan struct{})
        go func() {
            defer close(pubDone)
            for {
                select {
                case <-stop:
                    return
                default:
                    s.Broker.Publish("veh_churn", Event{Type: "alert", Data: map[string]any{"i": 1}})
                }
            }
        }()

        time.Sleep(2 * time.Millisecond)
        _ = conn.Close()
        time.Sleep(2 * time.Millisecond)
        close(stop)
        <-pubDone
    }
}

func TestWSSubscribeReceivesRouteEvents(t *testing.T) {
    s := newTestServer(t)
    conn, done := dialWS(t, s)
    defer done()

    sendWS(t, conn, "subscribe", map[string]any{"vehicleId": "veh_sub"})
    // give the subscription time to register
    time.Sleep(50 * time.Millisecond)
    s.Broker.Publish("veh_sub", Event{Type: "alert", Data: map[string]any{"vehicleId": "veh_sub"}})

    msg := readUntil(t, conn, "alert")
    var data map[string]any
    if err := json.Unmarshal(msg.Payload, &data); err != nil { t.Fatalf("decode: %v", err) }
    if data["vehicleId"] != "veh_sub" { t.Fatalf("unexpected alert: %v", data) }
}
