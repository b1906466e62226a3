package scenarios

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/simulation"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// Build creates a simulator for the scenario with every request scheduled
// and the incidents installed as a tick hook. opts are overlaid with the
// scenario's own options.
func Build(sc *Scenario, opts simulation.Options, extra ...simulation.Option) (*simulation.Simulator, error) {
	if err := sc.ApplyOptions(&opts); err != nil {
		return nil, err
	}
	g, err := sc.Graph()
	if err != nil {
		return nil, err
	}
	fleet, err := sc.Fleet()
	if err != nil {
		return nil, err
	}
	reqs, err := sc.Schedule()
	if err != nil {
		return nil, err
	}
	var sim *simulation.Simulator
	log := logger.New("scenario")
	script := sc.script()
	hook := func(tick int) {
		for _, inc := range script[tick] {
			if err := apply(sim, inc); err != nil {
				log.Warnf("scenario %s: %v", sc.Name, err)
			}
		}
	}
	sim, err = simulation.New(g, fleet, opts, append(extra, simulation.WithTickHook(hook))...)
	if err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if err := sim.Schedule(r); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// Run builds the scenario and runs it to the last tick.
func Run(ctx context.Context, sc *Scenario, opts simulation.Options, extra ...simulation.Option) (*simulation.Simulator, error) {
	sim, err := Build(sc, opts, extra...)
	if err != nil {
		return nil, err
	}
	if err := sim.Run(ctx); err != nil {
		return sim, err
	}
	return sim, nil
}

func (sc *Scenario) script() map[int][]Incident {
	out := map[int][]Incident{}
	incs := append([]Incident(nil), sc.Incidents...)
	sort.SliceStable(incs, func(i, j int) bool { return incs[i].At < incs[j].At })
	for _, inc := range incs {
		out[inc.At] = append(out[inc.At], inc)
	}
	return out
}

func apply(sim *simulation.Simulator, inc Incident) error {
	switch inc.Action {
	case "fail_station":
		if !sim.ForceStationFailure(inc.Station) {
			return fmt.Errorf("station %s cannot fail at %d", inc.Station, inc.At)
		}
	case "recover_station":
		if !sim.RecoverStation(inc.Station) {
			return fmt.Errorf("station %s cannot recover at %d", inc.Station, inc.At)
		}
	case "recover_vehicle":
		if !sim.RecoverVehicle(inc.Vehicle) {
			return fmt.Errorf("vehicle %s cannot recover at %d", inc.Vehicle, inc.At)
		}
	case "block", "unblock":
		return sim.Graph().SimulateBlockage(inc.From, inc.To, inc.Action == "block")
	}
	return nil
}

// Check compares the final metrics with the expected outcome.
func (sc *Scenario) Check(m metrics.Snapshot) error {
	var errs []error
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Errorf("%s: want %d, got %d", name, *want, got))
		}
	}
	check("completed", sc.Expected.Completed, m.Completed)
	check("rejected", sc.Expected.Rejected, m.Rejected)
	check("cancelled", sc.Expected.Cancelled, m.Cancelled)
	check("refills", sc.Expected.Refills, m.Refills)
	return errors.Join(errs...)
}
