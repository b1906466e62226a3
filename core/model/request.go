package model

import (
	"fmt"
	"sort"
)

// Preference is the environmental preference of a passenger.
type Preference int

const (
	PreferAny Preference = iota
	PreferElectric
	PreferCombustion
)

func (p Preference) String() string {
	switch p {
	case PreferElectric:
		return "electric"
	case PreferCombustion:
		return "combustion"
	default:
		return "any"
	}
}

// ParsePreference converts electric, combustion or any (empty means any).
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "any", "":
		return PreferAny, nil
	case "electric":
		return PreferElectric, nil
	case "combustion":
		return PreferCombustion, nil
	default:
		return PreferAny, fmt.Errorf("%w: unknown preference %q", ErrInvalidRequest, s)
	}
}

// Matches reports whether a vehicle type satisfies the preference.
func (p Preference) Matches(t VehicleType) bool {
	switch p {
	case PreferElectric:
		return t == Electric
	case PreferCombustion:
		return t == Combustion
	default:
		return true
	}
}

// RequestState is the lifecycle state of a request.
type RequestState int

const (
	Pending RequestState = iota
	Assigned
	InExecution
	Completed
	Rejected
	Cancelled
)

func (s RequestState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Assigned:
		return "assigned"
	case InExecution:
		return "in_execution"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s RequestState) Terminal() bool {
	return s == Completed || s == Rejected || s == Cancelled
}

var requestTransitions = map[RequestState][]RequestState{
	Pending:     {Assigned, Rejected, Cancelled},
	Assigned:    {InExecution, Pending, Cancelled},
	InExecution: {Completed, Cancelled},
}

// Request is a transport demand. A pooled request carries its Members and
// is served by a single vehicle trip.
type Request struct {
	ID          string
	Origin      string
	Destination string
	Passengers  int
	CreatedAt   int // tick
	Priority    int
	Preference  Preference
	// MaxWait is the number of ticks the request may stay pending. Zero
	// means no ceiling.
	MaxWait int

	VehicleID   string
	AssignedAt  int
	PickedUpAt  int
	CompletedAt int
	State       RequestState

	Members []*Request
	// Economy is the distance saved by pooling the members.
	Economy float64
}

// RequestSpec holds the fields supplied by a request producer.
type RequestSpec struct {
	ID          string
	Origin      string
	Destination string
	Passengers  int
	CreatedAt   int
	Priority    int
	Preference  string
	MaxWait     int
}

// NewRequest validates spec and returns a pending request.
func NewRequest(spec RequestSpec) (*Request, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRequest)
	}
	if spec.Origin == "" || spec.Destination == "" {
		return nil, fmt.Errorf("%w: %s origin and destination are required", ErrInvalidRequest, spec.ID)
	}
	if spec.Origin == spec.Destination {
		return nil, fmt.Errorf("%w: %s origin equals destination %s", ErrInvalidRequest, spec.ID, spec.Origin)
	}
	if spec.Passengers <= 0 {
		return nil, fmt.Errorf("%w: %s passengers must be positive", ErrInvalidRequest, spec.ID)
	}
	if spec.Priority < 0 {
		return nil, fmt.Errorf("%w: %s negative priority", ErrInvalidRequest, spec.ID)
	}
	if spec.MaxWait < 0 {
		return nil, fmt.Errorf("%w: %s negative max wait", ErrInvalidRequest, spec.ID)
	}
	if spec.CreatedAt < 0 {
		return nil, fmt.Errorf("%w: %s negative creation tick", ErrInvalidRequest, spec.ID)
	}
	pref, err := ParsePreference(spec.Preference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.ID, err)
	}
	return &Request{
		ID:          spec.ID,
		Origin:      spec.Origin,
		Destination: spec.Destination,
		Passengers:  spec.Passengers,
		CreatedAt:   spec.CreatedAt,
		Priority:    spec.Priority,
		Preference:  pref,
		MaxWait:     spec.MaxWait,
		State:       Pending,
	}, nil
}

// NewPooledRequest merges members into one shared trip between origin and
// destination. The pooled request is as old as its oldest member, as urgent
// as its most urgent one and expires with the earliest member deadline.
func NewPooledRequest(id, origin, destination string, members []*Request) *Request {
	sorted := append([]*Request(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})
	p := &Request{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		CreatedAt:   sorted[0].CreatedAt,
		State:       Pending,
		Members:     sorted,
	}
	deadline := -1
	pref := PreferAny
	mixed := false
	for _, m := range sorted {
		p.Passengers += m.Passengers
		if m.Priority > p.Priority {
			p.Priority = m.Priority
		}
		if m.MaxWait > 0 {
			d := m.CreatedAt + m.MaxWait
			if deadline < 0 || d < deadline {
				deadline = d
			}
		}
		if m.Preference != PreferAny {
			if pref != PreferAny && pref != m.Preference {
				mixed = true
			}
			pref = m.Preference
		}
	}
	if !mixed {
		p.Preference = pref
	}
	if deadline >= 0 {
		p.MaxWait = deadline - p.CreatedAt
	}
	return p
}

// Pooled reports whether the request groups several members.
func (r *Request) Pooled() bool { return len(r.Members) > 0 }

// Expired reports whether the request waited longer than its ceiling.
func (r *Request) Expired(tick int) bool {
	return r.MaxWait > 0 && tick-r.CreatedAt > r.MaxWait
}

// Waited returns the number of ticks since creation.
func (r *Request) Waited(tick int) int { return tick - r.CreatedAt }

// CanTransition reports whether the state machine allows moving to s.
func (r *Request) CanTransition(s RequestState) bool {
	for _, allowed := range requestTransitions[r.State] {
		if allowed == s {
			return true
		}
	}
	return false
}

// Transition moves the request, and its members, to s.
func (r *Request) Transition(s RequestState) error {
	if !r.CanTransition(s) {
		return fmt.Errorf("%w: request %s %s -> %s", ErrInvalidTransition, r.ID, r.State, s)
	}
	r.State = s
	for _, m := range r.Members {
		m.State = s
	}
	return nil
}

// Assign records the vehicle and tick of an assignment.
func (r *Request) Assign(vehicleID string, tick int) error {
	if err := r.Transition(Assigned); err != nil {
		return err
	}
	r.VehicleID = vehicleID
	r.AssignedAt = tick
	for _, m := range r.Members {
		m.VehicleID = vehicleID
		m.AssignedAt = tick
	}
	return nil
}

// Requeue sends an assigned request back to the pending pool.
func (r *Request) Requeue() error {
	if err := r.Transition(Pending); err != nil {
		return err
	}
	r.VehicleID = ""
	for _, m := range r.Members {
		m.VehicleID = ""
	}
	return nil
}

// ResponseTime returns the ticks between creation and assignment.
func (r *Request) ResponseTime() int { return r.AssignedAt - r.CreatedAt }
