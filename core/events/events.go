package events

// Sink receives every event emitted by the simulator. internal/eventbus.Bus
// satisfies it.
type Sink interface {
	Publish(ev any)
}

// NopSink drops events.
type NopSink struct{}

func (NopSink) Publish(any) {}

// MultiSink publishes to each sink in order.
type MultiSink []Sink

func (m MultiSink) Publish(ev any) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// RequestCreated is emitted when a scheduled request enters the pending pool.
type RequestCreated struct {
	Tick       int    `json:"tick"`
	RequestID  string `json:"request_id"`
	Origin     string `json:"origin"`
	Dest       string `json:"dest"`
	Passengers int    `json:"passengers"`
	Priority   int    `json:"priority"`
}

// RequestAssigned is emitted when a vehicle is matched with a request.
type RequestAssigned struct {
	Tick         int     `json:"tick"`
	RequestID    string  `json:"request_id"`
	VehicleID    string  `json:"vehicle_id"`
	Strategy     string  `json:"strategy"`
	ResponseTime int     `json:"response_time"` // ticks since creation
	PickupKm     float64 `json:"pickup_km"`
	TripKm       float64 `json:"trip_km"`
	Station      string  `json:"station,omitempty"` // refill stop, empty for a direct trip
	// Members lists the pooled requests served by this assignment.
	Members []string `json:"members,omitempty"`
}

// RequestRejected is emitted when no vehicle could serve a request.
type RequestRejected struct {
	Tick      int      `json:"tick"`
	RequestID string   `json:"request_id"`
	Reason    string   `json:"reason,omitempty"`
	Members   []string `json:"members,omitempty"`
}

// RequestPickedUp is emitted when the vehicle reaches the origin.
type RequestPickedUp struct {
	Tick      int    `json:"tick"`
	RequestID string `json:"request_id"`
	VehicleID string `json:"vehicle_id"`
}

// RequestCompleted is emitted when the vehicle reaches the destination.
type RequestCompleted struct {
	Tick      int      `json:"tick"`
	RequestID string   `json:"request_id"`
	VehicleID string   `json:"vehicle_id"`
	Members   []string `json:"members,omitempty"`
}

// RequestCancelled is emitted for expiries and aborted trips.
type RequestCancelled struct {
	Tick      int      `json:"tick"`
	RequestID string   `json:"request_id"`
	Expired   bool     `json:"expired"`
	Reason    string   `json:"reason,omitempty"`
	Members   []string `json:"members,omitempty"`
}

// RequestRequeued is emitted when an assigned request goes back to pending.
type RequestRequeued struct {
	Tick      int      `json:"tick"`
	RequestID string   `json:"request_id"`
	VehicleID string   `json:"vehicle_id"`
	Members   []string `json:"members,omitempty"`
}

// MemberIDs returns the original request ids covered by an event: members
// for a pooled request, the request itself otherwise.
func MemberIDs(requestID string, members []string) []string {
	if len(members) > 0 {
		return members
	}
	return []string{requestID}
}

// PoolFormed is emitted when requests are merged into a shared trip.
type PoolFormed struct {
	Tick      int      `json:"tick"`
	PoolID    string   `json:"pool_id"`
	Members   []string `json:"members,omitempty"`
	Origin    string   `json:"origin"`
	Dest      string   `json:"dest"`
	EconomyKm float64  `json:"economy_km"`
	DetourKm  float64  `json:"detour_km"`
}

// VehicleStateChanged is emitted on every vehicle state transition.
type VehicleStateChanged struct {
	Tick      int    `json:"tick"`
	VehicleID string `json:"vehicle_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// VehicleMoved is emitted when a vehicle traverses one edge.
type VehicleMoved struct {
	Tick      int     `json:"tick"`
	VehicleID string  `json:"vehicle_id"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Km        float64 `json:"km"`
	Loaded    bool    `json:"loaded"`
	Cost      float64 `json:"cost"`
	CO2Kg     float64 `json:"co2_kg"`
	RangeKm   float64 `json:"range_km"`
}

// VehicleRecharged is emitted when a vehicle refills at a station.
type VehicleRecharged struct {
	Tick      int     `json:"tick"`
	VehicleID string  `json:"vehicle_id"`
	StationID string  `json:"station_id"`
	AddedKm   float64 `json:"added_km"`
	Cost      float64 `json:"cost"`
}

// StationTransition is emitted when a station goes offline or online.
type StationTransition struct {
	Tick      int    `json:"tick"`
	StationID string `json:"station_id"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Available bool   `json:"available"`
}

// StationUnavailable is a warning raised when a vehicle reaches an offline
// station.
type StationUnavailable struct {
	Tick      int    `json:"tick"`
	VehicleID string `json:"vehicle_id"`
	StationID string `json:"station_id"`
}
