// Package app wires the configuration to the dispatch routines, their
// callback stages and the outer collaborators.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kilianp07/gridopt/config"
	coremetrics "github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/core/network"
	"github.com/kilianp07/gridopt/core/routine"
	"github.com/kilianp07/gridopt/core/runlog"
	"github.com/kilianp07/gridopt/infra/logger"
	"github.com/kilianp07/gridopt/infra/metrics"
	"github.com/kilianp07/gridopt/infra/mqtt"
	"github.com/kilianp07/gridopt/infra/report"
	"github.com/kilianp07/gridopt/infra/telemetry"
	"github.com/kilianp07/gridopt/internal/eventbus"
)

// Routine names accepted by Service.Run.
const (
	ACOPF = "acopf"
	DCOPF = "dcopf"
	DCPF  = "dcpf"
)

// eventBuffer holds iteration events of one ACOPF run.
const eventBuffer = 256

// Service builds routines sharing one recorder, run store, publisher and
// tracer.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	out       io.Writer
	recorder  coremetrics.RunRecorder
	store     runlog.Store
	publisher *mqtt.Publisher
	tracer    *telemetry.Tracer
	events    *eventbus.Bus[coremetrics.IterationEvent]
	stop      context.CancelFunc
	collector <-chan struct{}
}

// Option customises New.
type Option func(*Service)

// WithOutput redirects the report summary, stdout by default.
func WithOutput(w io.Writer) Option { return func(s *Service) { s.out = w } }

// WithLogger replaces the component logger.
func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = l } }

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{cfg: cfg, out: os.Stdout}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.New("service")
	}

	rec, err := coremetrics.NewRunRecorder(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	s.recorder = rec

	s.store, err = runlog.Open(cfg.Logging.Store())
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}

	if cfg.MQTT.Enabled() {
		s.publisher, err = mqtt.NewPublisher(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			_ = s.store.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
	}

	s.tracer, err = telemetry.NewTracer(cfg.Telemetry)
	if err != nil {
		s.closeOutputs()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	s.events = eventbus.NewBuffered[coremetrics.IterationEvent](eventBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.collector = metrics.StartIterationCollector(ctx, s.events, s.recorder)
	return s, nil
}

// Hooks returns the callback stages every routine of this service runs:
// text summary and charts at report, run store and broker at persist.
func (s *Service) Hooks() (*routine.Hooks, error) {
	h := routine.NewHooks()
	if s.cfg.Report.Summary {
		if err := h.Report.Add("summary", report.SummaryHook(s.out)); err != nil {
			return nil, err
		}
	}
	if s.cfg.Report.PlotPath != "" {
		if err := h.Report.Add("plot", report.PlotHook(s.cfg.Report.PlotPath)); err != nil {
			return nil, err
		}
	}
	if err := h.Persist.Add("runlog", s.persist); err != nil {
		return nil, err
	}
	if s.publisher != nil {
		if err := h.Persist.Add("mqtt", s.publisher.Hook()); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (s *Service) persist(res *routine.Result) (*routine.Result, error) {
	if err := s.store.Append(context.Background(), res.Record()); err != nil {
		return res, fmt.Errorf("persist run %s: %w", res.ID, err)
	}
	return res, nil
}

// Routine builds the named routine with the given hooks. Nil hooks use
// Service.Hooks.
func (s *Service) Routine(name string, hooks *routine.Hooks) (routine.Routine, error) {
	if hooks == nil {
		var err error
		if hooks, err = s.Hooks(); err != nil {
			return nil, err
		}
	}
	deps := routine.Deps{
		Logger:   logger.New(strings.ToLower(name)),
		Recorder: s.recorder,
		Tracer:   s.tracer.Tracer(),
		Hooks:    hooks,
		Events:   s.events,
	}
	switch strings.ToLower(name) {
	case ACOPF:
		opts, err := s.cfg.OPF.ACOptions()
		if err != nil {
			return nil, err
		}
		return routine.NewACOPF(opts, deps), nil
	case DCOPF:
		return routine.NewDCOPF(s.cfg.DCOPF.DCOptions(), deps), nil
	case DCPF:
		return routine.NewDCPF(deps), nil
	}
	return nil, fmt.Errorf("unknown routine %q", name)
}

// Run solves c with the named routine.
func (s *Service) Run(ctx context.Context, name string, c *network.Case) (*routine.Result, error) {
	r, err := s.Routine(name, nil)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, c)
}

// Runs lists stored run records.
func (s *Service) Runs(ctx context.Context, q runlog.RunQuery) ([]runlog.RunRecord, error) {
	return s.store.Query(ctx, q)
}

func (s *Service) closeOutputs() []error {
	var errs []error
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close run store: %w", err))
	}
	return errs
}

// Close stops the iteration collector, flushes spans and releases the
// run store and broker connection.
func (s *Service) Close() error {
	s.events.Close()
	<-s.collector
	s.stop()
	errs := s.closeOutputs()
	if err := s.tracer.Shutdown(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if c, ok := s.recorder.(interface{ Close() }); ok {
		c.Close()
	}
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
