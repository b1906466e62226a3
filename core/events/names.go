package events

// Name returns the wire name of an event, used for MQTT topics and journal
// records. Unknown values return false.
func Name(ev any) (string, bool) {
	switch ev.(type) {
	case RequestCreated:
		return "request_created", true
	case RequestAssigned:
		return "request_assigned", true
	case RequestRejected:
		return "request_rejected", true
	case RequestPickedUp:
		return "request_picked_up", true
	case RequestCompleted:
		return "request_completed", true
	case RequestCancelled:
		return "request_cancelled", true
	case RequestRequeued:
		return "request_requeued", true
	case PoolFormed:
		return "pool_formed", true
	case VehicleStateChanged:
		return "vehicle_state_changed", true
	case VehicleMoved:
		return "vehicle_moved", true
	case VehicleRecharged:
		return "vehicle_recharged", true
	case StationTransition:
		return "station_transition", true
	case StationUnavailable:
		return "station_unavailable", true
	}
	return "", false
}
