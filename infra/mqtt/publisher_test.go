package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridopt/core/routine"
	"github.com/kilianp07/gridopt/infra/logger"
)

// generateCert writes a self-signed certificate used as both leaf and CA.
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	caFile = filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	opts         *paho.ClientOptions
	published    []published
	publishErrs  []error
	connectErr   error
	disconnected bool
}

func (m *mockClient) IsConnected() bool { return !m.disconnected }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) { m.disconnected = true }
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	prev := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = prev })
}

func sampleResult() *routine.Result {
	return &routine.Result{
		ID:         "run-1",
		Routine:    "ACOPF",
		Case:       "case9",
		Converged:  true,
		Status:     "converged",
		Objective:  5296.7,
		Iterations: 12,
		Elapsed:    15 * time.Millisecond,
		Started:    time.UnixMilli(1_700_000_000_000),
		Solver:     "augmented-lagrangian/newton",
		Vars:       map[string][]float64{"pg": {0.9, 1.34, 0.94}},
	}
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, tlsCfg.Certificates)
	assert.NotNil(t, tlsCfg.RootCAs)

	_, err = Config{UseTLS: true}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)

	opts, err = NewClientOptions(Config{Broker: "tcp://localhost:1883", Username: "u", AuthMethod: "certificate"})
	require.NoError(t, err)
	assert.Empty(t, opts.Username)
}

func TestPublishRun(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", Topic: "grid/runs/", QoS: 1, Retain: true}, logger.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, p.PublishRun(sampleResult()))
	require.Len(t, mc.published, 1)
	msg := mc.published[0]
	assert.Equal(t, "grid/runs/acopf", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retain)

	var got RunMessage
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "ACOPF", got.Routine)
	assert.Equal(t, "case9", got.Case)
	assert.True(t, got.Converged)
	assert.InDelta(t, 15.0, got.ElapsedMS, 1e-9)
	assert.Equal(t, int64(1_700_000_000_000), got.Timestamp)
	assert.Equal(t, []float64{0.9, 1.34, 0.94}, got.Vars["pg"])
}

func TestPublishRunDefaultTopic(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gridopt/runs/dcopf", p.Topic("DCOPF"))
	assert.Equal(t, "gridopt", mc.opts.ClientID)
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{errors.New("net fail"), nil}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1}, logger.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, p.PublishRun(sampleResult()))
	assert.Len(t, mc.published, 2)
}

func TestRetryExhausted(t *testing.T) {
	fail := errors.New("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail}}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", MaxRetries: 2, BackoffMS: 1}, logger.NopLogger{})
	require.NoError(t, err)
	err = p.PublishRun(sampleResult())
	assert.ErrorIs(t, err, fail)
	assert.Len(t, mc.published, 3)
}

func TestConnectError(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	withMock(t, mc)
	_, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}, logger.NopLogger{})
	assert.ErrorContains(t, err, "refused")
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}, logger.NopLogger{})
	require.NoError(t, err)
	assert.True(t, mc.opts.WillEnabled)
	assert.Equal(t, "lwt", mc.opts.WillTopic)
	assert.Equal(t, "bye", string(mc.opts.WillPayload))
	p.Disconnect()
	assert.True(t, mc.disconnected)
	assert.Empty(t, mc.published)
}

func TestHookPublishes(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	p, err := NewPublisher(Config{Broker: "tcp://localhost:1883"}, logger.NopLogger{})
	require.NoError(t, err)

	hooks := routine.NewHooks()
	require.NoError(t, hooks.Persist.Add("mqtt", p.Hook()))
	res, err := hooks.Persist.Run(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.ID)
	assert.Len(t, mc.published, 1)
}
