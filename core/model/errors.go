package model

import "errors"

var (
	// ErrInvalidRequest is returned when a request violates its construction
	// invariants. Such requests never reach the pending pool.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInsufficientRange marks a candidate that cannot complete its trip,
	// even through a station.
	ErrInsufficientRange = errors.New("insufficient range")
	// ErrNoVehicleAvailable is returned when every candidate was filtered out
	// or found infeasible.
	ErrNoVehicleAvailable = errors.New("no vehicle available")
	// ErrStationUnavailable is returned when a station is offline or does not
	// serve the vehicle's energy type.
	ErrStationUnavailable = errors.New("station unavailable")
	// ErrRequestExpired marks a request that waited past its ceiling.
	ErrRequestExpired = errors.New("request expired")
	// ErrInvalidTransition is returned by the state machines.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnreachableGoal marks a search that exhausted its frontier.
	ErrUnreachableGoal = errors.New("unreachable goal")
	// ErrInvalidVehicle is returned by Vehicle.Validate.
	ErrInvalidVehicle = errors.New("invalid vehicle")
)
