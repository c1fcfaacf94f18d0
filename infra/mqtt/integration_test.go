package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/gridopt/infra/logger"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping broker test in short mode")
	}
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = cont.Terminate(context.Background()) })
	host, err := cont.Host(ctx)
	require.NoError(t, err)
	port, err := cont.MappedPort(ctx, "1883")
	require.NoError(t, err)
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Skipf("mosquitto not ready at %s: %v", broker, err)
	}
	return broker
}

func TestPublishRunBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	broker := startMosquitto(ctx, t)

	got := make(chan RunMessage, 1)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("subscriber"))
	tok := sub.Connect()
	tok.Wait()
	require.NoError(t, tok.Error())
	defer sub.Disconnect(100)
	tok = sub.Subscribe("gridopt/runs/#", 1, func(_ paho.Client, m paho.Message) {
		var msg RunMessage
		if err := json.Unmarshal(m.Payload(), &msg); err == nil {
			got <- msg
		}
	})
	tok.Wait()
	require.NoError(t, tok.Error())

	p, err := NewPublisher(Config{Broker: broker, ClientID: "publisher", QoS: 1}, logger.NopLogger{})
	require.NoError(t, err)
	defer p.Disconnect()
	require.NoError(t, p.PublishRun(sampleResult()))

	select {
	case msg := <-got:
		assert.Equal(t, "run-1", msg.RunID)
		assert.Equal(t, "ACOPF", msg.Routine)
	case <-time.After(5 * time.Second):
		t.Fatal("run message not received")
	}
}
