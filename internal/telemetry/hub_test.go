// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mkhts/gopvt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	c1 := dial(t, srv)
	c2 := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	var rec gopvt.Telemetry
	rec.Nav.Tick = 7
	rec.Nav.Converged = true
	rec.Chans[3] = gopvt.ChannelReport{Chan: 3, Sv: 12, Active: true, Status: gopvt.RAIM_ERR}
	hub.PublishTelemetry(rec)

	for _, c := range []*websocket.Conn{c1, c2} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(msg, &got))
		nav := got["Nav"].(map[string]any)
		assert.Equal(t, 7.0, nav["Tick"])
		assert.Equal(t, true, nav["Converged"])
		chans := got["Chans"].([]any)
		require.Len(t, chans, gopvt.MAX_CHANNELS)
		assert.Equal(t, "RAIM_ERR", chans[3].(map[string]any)["Status"])
	}
}

func TestHubUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Equal(t, 0, hub.ClientCount())

	// The client sees the connection closed
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)

	// Publishing after shutdown neither blocks nor panics
	assert.NotPanics(t, func() { hub.PublishTelemetry(gopvt.Telemetry{}) })
}

func TestHubDropsUnmarshalableRecord(t *testing.T) {
	hub := NewHub(nil)
	var rec gopvt.Telemetry
	rec.Nav.HDOP = math.NaN()
	hub.PublishTelemetry(rec)
	assert.Len(t, hub.broadcast, 0)
}
