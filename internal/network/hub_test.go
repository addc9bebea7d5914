package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PandemicSim/internal/events"
)

type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func startHub(t *testing.T) (*fixture, string) {
	t.Helper()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)

	srv := httptest.NewServer(f.router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return f, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestViewerIsGreetedWithSnapshot(t *testing.T) {
	f, url := startHub(t)
	conn := dial(t, url)

	got := readFrame(t, conn)

	require.Equal(t, MsgTypeSnapshot, got.Type)
	var snap struct {
		RunID string `json:"run_id"`
		Tick  int64  `json:"tick"`
	}
	require.NoError(t, json.Unmarshal(got.Payload, &snap))
	assert.Equal(t, f.engine.RunID(), snap.RunID)
	assert.Equal(t, int64(0), snap.Tick)
}

func TestViewerCommands(t *testing.T) {
	// Setup
	f, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn) // greeting

	// Act
	require.NoError(t, conn.WriteJSON(ControlCommand{Type: "pause"}))
	ack := readFrame(t, conn)

	// Assert
	require.Equal(t, MsgTypeAck, ack.Type, string(ack.Payload))
	var res ControlResult
	require.NoError(t, json.Unmarshal(ack.Payload, &res))
	assert.Equal(t, ActionPause, res.Action)
	assert.True(t, res.Paused)
	assert.True(t, f.controller.Paused())

	// A second command right away is refused.
	require.NoError(t, conn.WriteJSON(ControlCommand{Type: ActionStep}))
	refused := readFrame(t, conn)
	require.Equal(t, MsgTypeError, refused.Type)
	assert.Contains(t, string(refused.Payload), "too many commands")
	assert.Equal(t, int64(0), f.engine.Tick())

	// After the interval the step goes through.
	time.Sleep(commandInterval + 20*time.Millisecond)
	require.NoError(t, conn.WriteJSON(ControlCommand{Type: ActionStep}))
	stepped := readFrame(t, conn)
	require.Equal(t, MsgTypeAck, stepped.Type, string(stepped.Payload))
	assert.Equal(t, int64(1), f.engine.Tick())
}

func TestViewerRejectedReset(t *testing.T) {
	f, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn)
	before := f.engine.RunID()

	bad := -3
	require.NoError(t, conn.WriteJSON(ControlCommand{Type: ActionReset, Payload: &ResetRequest{Population: &bad}}))
	got := readFrame(t, conn)

	require.Equal(t, MsgTypeError, got.Type)
	var body struct {
		Error  string            `json:"error"`
		Fields []json.RawMessage `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(got.Payload, &body))
	assert.Contains(t, body.Error, "population")
	assert.NotEmpty(t, body.Fields)
	assert.Equal(t, before, f.engine.RunID())
}

func TestBroadcastReachesEveryViewer(t *testing.T) {
	f, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	readFrame(t, a)
	readFrame(t, b)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	f.hub.BroadcastEvent(events.Event{ID: "e1", Type: events.EventTypeDeath, Tick: 4, AgentID: 9})

	for _, conn := range []*websocket.Conn{a, b} {
		got := readFrame(t, conn)
		require.Equal(t, MsgTypeEvent, got.Type)
		var e events.Event
		require.NoError(t, json.Unmarshal(got.Payload, &e))
		assert.Equal(t, "e1", e.ID)
		assert.Equal(t, 9, e.AgentID)
	}
}

func TestViewerLimit(t *testing.T) {
	f, url := startHub(t)
	dial(t, url)
	dial(t, url)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestViewerDisconnectUnregisters(t *testing.T) {
	f, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventPollerForwardsNewEvents(t *testing.T) {
	f, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.hub.StartEventPoller(ctx, f.eventLog, 5*time.Millisecond)
	// the poller starts after the seeding RESET; append once it is running
	time.Sleep(20 * time.Millisecond)
	f.eventLog.Append(events.Event{ID: "late", Type: events.EventTypeRecovery, Tick: 2, AgentID: 1})

	got := readFrame(t, conn)
	require.Equal(t, MsgTypeEvent, got.Type)
	assert.Contains(t, string(got.Payload), `"late"`)
}
