// Package simulation exposes a running simulation over HTTP: JSON views of
// the metrics, stations, vehicles and requests, plus station and vehicle
// controls.
package simulation

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/fleetsim/core/failure"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
)

// Source is the part of the simulator the handlers read and control.
type Source interface {
	Tick() int
	Hour() int
	Finished() bool
	Metrics() metrics.Snapshot
	Availability() failure.Availability
	StationHistory() []failure.Record
	Vehicles() []model.Vehicle
	Requests() []model.Request
	Request(id string) (model.Request, bool)
	ForceStationFailure(id string) bool
	RecoverStation(id string) bool
	RecoverVehicle(id string) bool
}

// Status is the clock view.
type Status struct {
	Tick     int  `json:"tick"`
	Hour     int  `json:"hour"`
	Finished bool `json:"finished"`
}

// StationRecord is one entry of the station history.
type StationRecord struct {
	Tick      int    `json:"tick"`
	StationID string `json:"station_id"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
}

// VehicleView is the public state of a vehicle.
type VehicleView struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Node       string   `json:"node"`
	State      string   `json:"state"`
	RangeKm    float64  `json:"range_km"`
	MaxRangeKm float64  `json:"max_range_km"`
	Capacity   int      `json:"capacity"`
	Passengers int      `json:"passengers"`
	RequestID  string   `json:"request_id,omitempty"`
	Route      []string `json:"route,omitempty"`
	TotalKm    float64  `json:"total_km"`
	EmptyKm    float64  `json:"empty_km"`
}

// RequestView is the public state of a request.
type RequestView struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Passengers  int    `json:"passengers"`
	Priority    int    `json:"priority"`
	Preference  string `json:"preference"`
	State       string `json:"state"`
	CreatedAt   int    `json:"created_at"`
	VehicleID   string `json:"vehicle_id,omitempty"`
}

// NewHandler returns the API mux. Control endpoints require an
// Authorization header with "Bearer <token>" when token is non-empty.
func NewHandler(src Source, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/simulation/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, Status{Tick: src.Tick(), Hour: src.Hour(), Finished: src.Finished()})
	})
	mux.HandleFunc("GET /api/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, src.Metrics())
	})
	mux.HandleFunc("GET /api/stations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, src.Availability())
	})
	mux.HandleFunc("GET /api/stations/history", func(w http.ResponseWriter, _ *http.Request) {
		hist := src.StationHistory()
		out := make([]StationRecord, len(hist))
		for i, r := range hist {
			out[i] = StationRecord{Tick: r.Tick, StationID: r.StationID, Kind: r.Kind.String(), Type: string(r.Type)}
		}
		writeJSON(w, out)
	})
	mux.Handle("POST /api/stations/{id}/fail", authorize(token, toggle(src.ForceStationFailure)))
	mux.Handle("POST /api/stations/{id}/recover", authorize(token, toggle(src.RecoverStation)))
	mux.HandleFunc("GET /api/vehicles", func(w http.ResponseWriter, _ *http.Request) {
		vs := src.Vehicles()
		out := make([]VehicleView, len(vs))
		for i, v := range vs {
			out[i] = vehicleView(v)
		}
		writeJSON(w, out)
	})
	mux.Handle("POST /api/vehicles/{id}/recover", authorize(token, toggle(src.RecoverVehicle)))
	mux.HandleFunc("GET /api/requests", func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		out := []RequestView{}
		for _, req := range src.Requests() {
			if state != "" && req.State.String() != state {
				continue
			}
			out = append(out, requestView(req))
		}
		writeJSON(w, out)
	})
	mux.HandleFunc("GET /api/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		req, ok := src.Request(r.PathValue("id"))
		if !ok {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		writeJSON(w, requestView(req))
	})
	return mux
}

// toggle applies f to the path id. A false result means the id is unknown
// or already in the target state.
func toggle(f func(string) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f(r.PathValue("id")) {
			http.Error(w, "no transition", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func authorize(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func vehicleView(v model.Vehicle) VehicleView {
	var route []string
	if v.RouteIdx < len(v.Route) {
		route = v.Route[v.RouteIdx:]
	}
	return VehicleView{
		ID: v.ID, Type: v.Type.String(), Node: v.Node, State: v.State.String(),
		RangeKm: v.Range, MaxRangeKm: v.MaxRange, Capacity: v.Capacity,
		Passengers: v.Passengers, RequestID: v.RequestID, Route: route,
		TotalKm: v.TotalKm, EmptyKm: v.EmptyKm,
	}
}

func requestView(r model.Request) RequestView {
	return RequestView{
		ID: r.ID, Origin: r.Origin, Destination: r.Destination, Passengers: r.Passengers,
		Priority: r.Priority, Preference: r.Preference.String(), State: r.State.String(),
		CreatedAt: r.CreatedAt, VehicleID: r.VehicleID,
	}
}
