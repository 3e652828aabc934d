// Package main runs a demo WebSocket client: it reports a vehicle position,
// requests a route, then drifts off it and prints the broadcasts that come
// back (position, route.updated, alert).
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	send := func(typ string, v any) {
		payload, _ := json.Marshal(v)
		if err := c.WriteJSON(wsMessage{Type: typ, Payload: payload}); err != nil {
			log.Fatal(err)
		}
	}

	// Print everything the server broadcasts
	go func() {
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("<- %s %s", msg.Type, string(msg.Payload))
		}
	}()

	// Initial position, then request a route for the vehicle
	send("position", map[string]any{"vehicleId": "veh_demo", "lat": 37.7749, "lng": -122.4194, "speedKmh": 40})
	time.Sleep(100 * time.Millisecond)
	resp, err := http.Get(base + "/v1/route?vehicleId=veh_demo&toLat=37.8044&toLng=-122.2712")
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("route query: %s", resp.Status)

	// Drift sideways off the polyline; after three strikes the server
	// recomputes and broadcasts route.updated.
	lat, lng := 37.7749, -122.4194
	for i := 0; i < 8; i++ {
		lat += 0.002 // ~220 m north per tick, away from the route
		send("position", map[string]any{"vehicleId": "veh_demo", "lat": lat, "lng": lng, "speedKmh": 40})
		time.Sleep(2100 * time.Millisecond)
	}

	// Drop an obstacle on the remaining path
	send("obstacle", map[string]any{"lat": lat + 0.001, "lng": lng, "radiusM": 300, "description": "demo obstacle"})
	time.Sleep(2 * time.Second)
}
