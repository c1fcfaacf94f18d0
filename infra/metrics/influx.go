package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/gridopt/core/metrics"
	"github.com/kilianp07/gridopt/infra/logger"
)

// InfluxSink writes run events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(c InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(c.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, c.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(c.Org, c.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// if the health check fails.
func NewInfluxSinkWithFallback(c InfluxConfig) coremetrics.RunRecorder {
	sink := NewInfluxSink(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes the run summary as a routine_run point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("routine_run").
		AddTag("routine", ev.Routine).
		AddTag("run_id", ev.RunID).
		AddTag("converged", strconv.FormatBool(ev.Converged))
	if ev.Case != "" {
		p = p.AddTag("case", ev.Case)
	}
	p = p.AddField("objective", round6(ev.Objective)).
		AddField("iterations", ev.Iterations).
		AddField("elapsed_ms", round6(float64(ev.Elapsed)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordIteration writes solver progress as a solver_iteration point.
func (s *InfluxSink) RecordIteration(ev coremetrics.IterationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("solver_iteration").
		AddTag("routine", ev.Routine).
		AddTag("run_id", ev.RunID).
		AddField("iteration", ev.Iteration).
		AddField("inner_iterations", ev.InnerIterations).
		AddField("objective", round6(ev.Objective)).
		AddField("infeasibility", ev.Infeasibility).
		AddField("penalty", ev.Penalty).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
