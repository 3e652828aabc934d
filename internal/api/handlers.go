package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "navtrack/internal/buildinfo"
    "navtrack/internal/model"
)

// PositionsHandler handles POST /v1/positions. The same report can arrive
// over /ws; both paths feed the engine and the throttled broadcast.
func (s *Server) PositionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var rep model.PositionReport
    if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    v, err := s.Engine.HandlePosition(r.Context(), rep)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid position report", err.Error(), r.URL.Path)
        return
    }
    s.broadcastPosition(v)
    writeJSON(w, http.StatusAccepted, v)
}

// HazardsHandler handles POST (report) and GET (active list) on /v1/hazards.
func (s *Server) HazardsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var rep model.HazardReport
        if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        hz, affected, err := s.Engine.HandleHazard(r.Context(), rep)
        if err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid hazard report", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, map[string]any{"hazard": hz, "affectedRoutes": affected})
    case http.MethodGet:
        cutoff := time.Now().Add(-s.Cfg.HazardMaxAge())
        items, err := s.Store.ListActiveHazards(r.Context(), cutoff)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

func parseCoord(q map[string][]string, latKey, lngKey string) (model.Coordinate, bool) {
    latS, lngS := first(q[latKey]), first(q[lngKey])
    if latS == "" || lngS == "" { return model.Coordinate{}, false }
    lat, err1 := strconv.ParseFloat(latS, 64)
    lng, err2 := strconv.ParseFloat(lngS, 64)
    if err1 != nil || err2 != nil { return model.Coordinate{}, false }
    return model.Coordinate{Lat: lat, Lng: lng}, true
}

func first(vs []string) string {
    if len(vs) == 0 { return "" }
    return vs[0]
}

// RouteQueryHandler handles GET /v1/route. The start comes from
// fromLat/fromLng, or from the last known position of vehicleId when those
// are absent. A vehicleId also installs the result as that vehicle's active
// route.
func (s *Server) RouteQueryHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    q := r.URL.Query()
    vehicleID := q.Get("vehicleId")

    end, ok := parseCoord(q, "toLat", "toLng")
    if !ok {
        writeProblem(w, http.StatusBadRequest, "Missing destination", "toLat and toLng are required", r.URL.Path)
        return
    }
    start, ok := parseCoord(q, "fromLat", "fromLng")
    if !ok {
        if vehicleID == "" {
            writeProblem(w, http.StatusBadRequest, "Missing origin", "provide fromLat/fromLng or vehicleId", r.URL.Path)
            return
        }
        v, found := s.Engine.State.Vehicle(vehicleID)
        if !found {
            writeProblem(w, http.StatusBadRequest, "Unknown vehicle", fmt.Sprintf("no position known for %s", vehicleID), r.URL.Path)
            return
        }
        start = v.Position
    }

    rt, err := s.Engine.AssignRoute(r.Context(), vehicleID, start, end)
    if err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid route query", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, rt)
}

// VehiclesHandler handles GET /v1/vehicles.
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": s.Engine.State.Vehicles()})
}

// VehicleByIDHandler handles /v1/vehicles/{id}, /{id}/route, /{id}/history
// and /{id}/events/stream.
func (s *Server) VehicleByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/vehicles/")
    if rest == "" || rest == r.URL.Path {
        writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
        return
    }
    parts := strings.Split(rest, "/")
    id := parts[0]

    if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
        s.vehicleEventsStream(w, r, id)
        return
    }
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    if len(parts) > 1 && parts[1] == "route" {
        rt, ok := s.Engine.State.Route(id)
        if !ok {
            writeProblem(w, http.StatusNotFound, "No active route", fmt.Sprintf("vehicle %s has no route", id), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, rt)
        return
    }
    if len(parts) > 1 && parts[1] == "history" {
        limit := 50
        if v := r.URL.Query().Get("limit"); v != "" {
            if n, err := strconv.Atoi(v); err == nil && n > 0 { limit = n }
        }
        recs, err := s.Store.ListRouteRecords(r.Context(), id, limit)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": recs})
        return
    }
    v, ok := s.Engine.State.Vehicle(id)
    if !ok {
        writeProblem(w, http.StatusNotFound, "Unknown vehicle", "", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, v)
}

// vehicleEventsStream streams per-vehicle events (route.updated, route,
// alert, position) as SSE with periodic heartbeats.
func (s *Server) vehicleEventsStream(w http.ResponseWriter, r *http.Request, id string) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(id)
    defer s.Broker.Unsubscribe(id, ch)
    // initial heartbeat
    fmt.Fprintf(w, "event: heartbeat\n")
    fmt.Fprintf(w, "data: {\"vehicleId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
    flusher.Flush()
    notify := r.Context().Done()
    for {
        select {
        case <-notify:
            return
        case evt := <-ch:
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-time.After(15 * time.Second):
            fmt.Fprintf(w, "event: heartbeat\n")
            fmt.Fprintf(w, "data: {\"vehicleId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
            flusher.Flush()
        }
    }
}

// TrafficHandler handles POST /v1/traffic: a manually supplied delay for a
// destination cell, added to the duration of routes ending there until the
// TTL passes.
func (s *Server) TrafficHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Lat     float64 `json:"lat"`
        Lng     float64 `json:"lng"`
        DelayMs int64   `json:"delayMs"`
        TTLSec  int     `json:"ttlSec"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    at := model.Coordinate{Lat: req.Lat, Lng: req.Lng}
    if !at.Valid() || req.DelayMs < 0 {
        writeProblem(w, http.StatusBadRequest, "Invalid traffic delay", "coordinates out of range or negative delay", r.URL.Path)
        return
    }
    ttl := time.Duration(req.TTLSec) * time.Second
    if ttl <= 0 { ttl = 15 * time.Minute }
    if err := s.Store.SetTrafficDelay(r.Context(), at, req.DelayMs, ttl); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Store error", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok"})
}

// HealthHandler handles GET /healthz.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

// ReadyHandler handles GET /readyz: store ping plus a provider probe. A
// missing provider credential is not a failure, the service still serves
// fallback routes.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    if err := s.Store.Ping(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
        return
    }
    if s.Engine.Source == nil {
        writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "routing": "fallback-only"})
        return
    }
    if err := s.Engine.Probe(r.Context()); err != nil {
        writeProblem(w, http.StatusServiceUnavailable, "Routing provider unreachable", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "routing": "provider"})
}
