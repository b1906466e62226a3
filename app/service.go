package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	simapi "github.com/kilianp07/fleetsim/api/simulation"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/factory"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/simulation"
	"github.com/kilianp07/fleetsim/infra/journal"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/metrics"
	"github.com/kilianp07/fleetsim/infra/mqtt"
	_ "github.com/kilianp07/fleetsim/infra/report"
	"github.com/kilianp07/fleetsim/internal/eventbus"
	"github.com/kilianp07/fleetsim/qa/scenarios"
)

// Service wires one simulation run to its exporters, the event bus, the
// journal, the MQTT forwarder and the HTTP API.
type Service struct {
	Sim       *simulation.Simulator
	RunID     string
	cfg       *config.Config
	bus       *eventbus.Bus
	exporter  coremetrics.Sink
	forwarder *mqtt.Forwarder
	journal   journal.Store
	recorder  *journal.Sink
	log       logger.Logger
}

// New builds the simulator for sc from the configuration.
func New(cfg *config.Config, sc *scenarios.Scenario) (*Service, error) {
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	runID := uuid.NewString()
	logg := logger.NewRunLogger("service", runID)

	exporter, err := coremetrics.NewSink(withRunID(cfg.Metrics.Sinks, runID))
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}

	var fwd *mqtt.Forwarder
	if cfg.MQTT.Enabled {
		mcfg := cfg.MQTT.Config
		mcfg.RunID = runID
		fwd, err = mqtt.NewForwarder(mcfg)
		if err != nil {
			closeSink(exporter)
			return nil, fmt.Errorf("mqtt forwarder: %w", err)
		}
	}

	var store journal.Store
	if cfg.Journal.Enabled() {
		if store, err = journal.Open(cfg.Journal); err != nil {
			if fwd != nil {
				fwd.Disconnect()
			}
			closeSink(exporter)
			return nil, fmt.Errorf("journal: %w", err)
		}
	}

	bus := eventbus.New()
	sinks := events.MultiSink{bus}
	var recorder *journal.Sink
	if store != nil {
		recorder = journal.NewSink(store, runID, logger.NewRunLogger("journal", runID))
		sinks = append(sinks, recorder)
	}
	sim, err := scenarios.Build(sc, cfg.Simulation,
		simulation.WithLogger(logger.NewRunLogger("simulation", runID)),
		simulation.WithSink(sinks),
		simulation.WithExporter(exporter),
		simulation.WithPacing(cfg.Pacing.Interval()),
	)
	if err != nil {
		if fwd != nil {
			fwd.Disconnect()
		}
		if store != nil {
			_ = store.Close()
		}
		closeSink(exporter)
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	logg.Infof("run %s: scenario %s, %d vehicles, %d requests", runID, sc.Name, len(sc.Vehicles), len(sc.Requests))
	return &Service{Sim: sim, RunID: runID, cfg: cfg, bus: bus, exporter: exporter, forwarder: fwd, journal: store, recorder: recorder, log: logg}, nil
}

// withRunID tags influx sinks with the run id unless one is configured.
func withRunID(sinks []factory.ModuleConfig, runID string) []factory.ModuleConfig {
	out := make([]factory.ModuleConfig, len(sinks))
	for i, s := range sinks {
		out[i] = s
		if s.Type != "influx" {
			continue
		}
		conf := map[string]any{"run_id": runID}
		for k, v := range s.Conf {
			conf[k] = v
		}
		out[i].Conf = conf
	}
	return out
}

// Run executes the simulation and returns the final metrics. With
// api.linger set, the API keeps serving after the last tick until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) (coremetrics.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := metrics.StartEventCollector(ctx, s.bus, s.exporter, s.log)
	forwarded := closedChan()
	if s.forwarder != nil {
		forwarded = s.forwarder.Start(ctx, s.bus)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	apiDone := closedChan()
	if s.cfg.API.Addr != "" {
		apiDone = s.serveAPI(ctx)
	}

	runErr := s.Sim.Run(ctx)
	s.bus.Close()
	<-collected
	<-forwarded
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("event bus dropped %d deliveries to slow subscribers", n)
	}
	if s.forwarder != nil {
		sent, dropped := s.forwarder.Stats()
		s.log.Infof("mqtt: %d events published, %d dropped", sent, dropped)
	}
	if s.recorder != nil {
		written, failed := s.recorder.Stats()
		s.log.Infof("journal: %d records written, %d failed", written, failed)
	}
	snap := s.Sim.Metrics()
	if runErr == nil && s.cfg.API.Addr != "" && s.cfg.API.Linger {
		s.log.Infof("run finished, API still serving on %s", s.cfg.API.Addr)
		<-ctx.Done()
	}
	cancel()
	<-apiDone
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return snap, runErr
	}
	return snap, nil
}

func (s *Service) serveAPI(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           simapi.NewHandler(s.Sim, s.cfg.API.Token),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	go func() {
		defer close(done)
		s.log.Infof("serving API on %s", s.cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("api server: %v", err)
		}
	}()
	return done
}

// Close releases the broker connection, the journal and exporter clients.
func (s *Service) Close() {
	if s.forwarder != nil {
		s.forwarder.Disconnect()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.log.Warnf("close journal: %v", err)
		}
	}
	closeSink(s.exporter)
}

func closeSink(sink coremetrics.Sink) {
	switch sk := sink.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range sk.Sinks() {
			closeSink(inner)
		}
	case interface{ Close() }:
		sk.Close()
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
