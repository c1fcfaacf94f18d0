package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/gridopt/core/routine"
	"github.com/kilianp07/gridopt/infra/logger"
)

// RunMessage is the JSON payload published for every run.
type RunMessage struct {
	RunID      string               `json:"run_id"`
	Routine    string               `json:"routine"`
	Case       string               `json:"case"`
	Converged  bool                 `json:"converged"`
	Status     string               `json:"status"`
	Objective  float64              `json:"objective"`
	Iterations int                  `json:"iterations"`
	ElapsedMS  float64              `json:"elapsed_ms"`
	Solver     string               `json:"solver"`
	Timestamp  int64                `json:"timestamp"`
	Vars       map[string][]float64 `json:"vars,omitempty"`
}

// Publisher pushes run summaries to <topic>/<routine>.
type Publisher struct {
	cli        pahoClient
	topic      string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New("mqtt_publisher")
	}
	p := &Publisher{
		topic:      strings.TrimSuffix(cfg.Topic, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 3
	}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	p.cli = c
	return p, nil
}

// Topic returns the topic results of a routine are published on.
func (p *Publisher) Topic(routineName string) string {
	return p.topic + "/" + strings.ToLower(routineName)
}

// PublishRun sends res, retrying with exponential backoff.
func (p *Publisher) PublishRun(res *routine.Result) error {
	msg := RunMessage{
		RunID:      res.ID,
		Routine:    res.Routine,
		Case:       res.Case,
		Converged:  res.Converged,
		Status:     res.Status,
		Objective:  res.Objective,
		Iterations: res.Iterations,
		ElapsedMS:  float64(res.Elapsed) / float64(time.Millisecond),
		Solver:     res.Solver,
		Timestamp:  res.Started.UnixMilli(),
		Vars:       res.Vars,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", res.ID, err)
	}
	topic := p.Topic(res.Routine)
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("published run %s to %s", res.ID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish run %s: %w", res.ID, publishErr)
}

// Hook returns a persist stage callback publishing every result.
func (p *Publisher) Hook() func(*routine.Result) (*routine.Result, error) {
	return func(res *routine.Result) (*routine.Result, error) {
		return res, p.PublishRun(res)
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *Publisher) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
