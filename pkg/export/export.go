// Package export writes the per-request outcome of a run.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/fleetsim/core/model"
)

// Trip is the outcome of one request. Ticks a request never reached are nil.
type Trip struct {
	RequestID   string `json:"request_id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Passengers  int    `json:"passengers"`
	Preference  string `json:"preference"`
	State       string `json:"state"`
	VehicleID   string `json:"vehicle_id,omitempty"`
	CreatedAt   int    `json:"created_at"`
	AssignedAt  *int   `json:"assigned_at,omitempty"`
	PickedUpAt  *int   `json:"picked_up_at,omitempty"`
	CompletedAt *int   `json:"completed_at,omitempty"`
}

// Trips converts requests to rows, keeping their order.
func Trips(reqs []model.Request) []Trip {
	out := make([]Trip, len(reqs))
	for i, r := range reqs {
		t := Trip{
			RequestID:   r.ID,
			Origin:      r.Origin,
			Destination: r.Destination,
			Passengers:  r.Passengers,
			Preference:  r.Preference.String(),
			State:       r.State.String(),
			VehicleID:   r.VehicleID,
			CreatedAt:   r.CreatedAt,
		}
		if r.VehicleID != "" {
			t.AssignedAt = ptr(r.AssignedAt)
		}
		if r.State == model.InExecution || r.State == model.Completed {
			t.PickedUpAt = ptr(r.PickedUpAt)
		}
		if r.State == model.Completed {
			t.CompletedAt = ptr(r.CompletedAt)
		}
		out[i] = t
	}
	return out
}

func ptr(v int) *int { return &v }

// WriteJSON writes the trips to w as a JSON array.
func WriteJSON(w io.Writer, reqs []model.Request) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Trips(reqs))
}

// WriteCSV writes the trips to w with a header row. Unreached ticks are
// left empty.
func WriteCSV(w io.Writer, reqs []model.Request) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"request_id", "origin", "destination", "passengers", "preference", "state",
		"vehicle_id", "created_at", "assigned_at", "picked_up_at", "completed_at",
	}); err != nil {
		return err
	}
	for _, t := range Trips(reqs) {
		rec := []string{
			t.RequestID,
			t.Origin,
			t.Destination,
			strconv.Itoa(t.Passengers),
			t.Preference,
			t.State,
			t.VehicleID,
			strconv.Itoa(t.CreatedAt),
			optional(t.AssignedAt),
			optional(t.PickedUpAt),
			optional(t.CompletedAt),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optional(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
