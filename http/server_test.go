package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartrisk/monitoring"
)

func TestServerServesPredictionFeed(t *testing.T) {
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(nil, metrics)
	handlers := NewHandlers(newTestService(t, newCountingModel()), WithFeed(hub), WithMetrics(metrics))
	server := NewServer(DefaultServerConfig(), handlers, nil, metrics)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, hub.Run(ctx))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, server.Serve(ctx, ln))
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	base := "http://" + ln.Addr().String()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/ws/predictions", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(base+"/predict", "application/json", strings.NewReader(aliceJSON))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event struct {
		Type monitoring.EventType `json:"type"`
		Data struct {
			PatientName string `json:"patient_name"`
			RiskLevel   string `json:"risk_level"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, monitoring.EventPrediction, event.Type)
	assert.Equal(t, "Alice", event.Data.PatientName)
	assert.Equal(t, "Low Risk", event.Data.RiskLevel)
}

func TestServerRunFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := DefaultServerConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	server := NewServer(cfg, NewHandlers(newTestService(t, newCountingModel())), nil, nil)
	assert.Error(t, server.Run(context.Background()))
}
