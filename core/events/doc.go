// Package events defines the structured events emitted by the simulator.
// Every event carries the tick it happened on.
//
// Request lifecycle: RequestCreated, RequestAssigned, RequestRejected,
// RequestPickedUp, RequestCompleted, RequestCancelled, RequestRequeued and
// PoolFormed. Fleet: VehicleStateChanged, VehicleMoved, VehicleRecharged.
// Network: StationTransition, StationUnavailable.
package events
