package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/model"
)

func sample() []model.Request {
	return []model.Request{
		{ID: "r1", Origin: "A", Destination: "D", Passengers: 1, State: model.Completed,
			VehicleID: "ev1", CreatedAt: 0, AssignedAt: 2, PickedUpAt: 2, CompletedAt: 9},
		{ID: "r2", Origin: "D", Destination: "A", Passengers: 2, Preference: model.PreferCombustion,
			State: model.Rejected, CreatedAt: 1},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	want := "request_id,origin,destination,passengers,preference,state,vehicle_id,created_at,assigned_at,picked_up_at,completed_at\n" +
		"r1,A,D,1,any,completed,ev1,0,2,2,9\n" +
		"r2,D,A,2,combustion,rejected,,1,,,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()))
	var trips []Trip
	require.NoError(t, json.Unmarshal(buf.Bytes(), &trips))
	require.Len(t, trips, 2)
	require.NotNil(t, trips[0].CompletedAt)
	assert.Equal(t, 9, *trips[0].CompletedAt)
	assert.Nil(t, trips[1].AssignedAt)
	assert.Equal(t, "combustion", trips[1].Preference)
}

func TestTripsInExecution(t *testing.T) {
	trips := Trips([]model.Request{{ID: "r3", State: model.InExecution, VehicleID: "ice1", AssignedAt: 0, PickedUpAt: 0}})
	require.NotNil(t, trips[0].AssignedAt)
	require.NotNil(t, trips[0].PickedUpAt)
	assert.Nil(t, trips[0].CompletedAt)
}
