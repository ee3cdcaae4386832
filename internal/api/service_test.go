package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/ddnsd/internal/ddnsmgr"
	"github.com/dmdmdm-nz/ddnsd/internal/ipaddr"
	"github.com/dmdmdm-nz/ddnsd/internal/runtime"
)

// mockManager is a mock implementation of Manager for testing
type mockManager struct {
	status     ddnsmgr.Status
	ready      bool
	refreshErr error
	refreshed  int
	activity   *runtime.Broadcaster[ddnsmgr.Activity]
}

func newMockManager() *mockManager {
	return &mockManager{activity: runtime.NewBroadcaster[ddnsmgr.Activity]()}
}

func (m *mockManager) Status() ddnsmgr.Status { return m.status }

func (m *mockManager) Ready() bool { return m.ready }

func (m *mockManager) Refresh() error {
	if m.refreshErr != nil {
		return m.refreshErr
	}
	m.refreshed++
	return nil
}

func (m *mockManager) SubscribeActivity() (<-chan ddnsmgr.Activity, func()) {
	return m.activity.Subscribe(0)
}

func serve(t *testing.T, s *Service, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := NewService("127.0.0.1:0", newMockManager())

	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPost, "/health").Code)
}

func TestReady(t *testing.T) {
	mock := newMockManager()
	s := NewService("127.0.0.1:0", mock)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodGet, "/ready").Code)

	mock.ready = true
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodGet, "/ready").Code)
}

func TestStatus(t *testing.T) {
	mock := newMockManager()
	lastCall := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.status = ddnsmgr.Status{
		Interface: "eth0",
		Family:    ipaddr.IPv4,
		Provider:  "duckdns",
		Domain:    "home.duckdns.org",
		Ready:     true,
		Addresses: map[string]string{"IPv4": "192.0.2.10"},
		Registrations: []ddnsmgr.RegistrationStatus{{
			Family:     ipaddr.IPv4,
			Registered: "192.0.2.10",
			LastCall:   &lastCall,
		}},
	}
	s := NewService("127.0.0.1:0", mock)

	w := serve(t, s, http.MethodGet, "/status")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result ddnsmgr.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, mock.status, result)
	assert.Contains(t, w.Body.String(), `"monitorOnly":false`)
	assert.NotContains(t, w.Body.String(), `"pending"`)
}

func TestRefresh(t *testing.T) {
	testCases := map[string]struct {
		method     string
		refreshErr error
		wantCode   int
		wantCalls  int
	}{
		"accepted": {
			method:    http.MethodPost,
			wantCode:  http.StatusAccepted,
			wantCalls: 1,
		},
		"monitor only": {
			method:     http.MethodPost,
			refreshErr: ddnsmgr.ErrMonitorOnly,
			wantCode:   http.StatusConflict,
		},
		"not ready": {
			method:     http.MethodPost,
			refreshErr: ddnsmgr.ErrNotReady,
			wantCode:   http.StatusServiceUnavailable,
		},
		"wrong method": {
			method:   http.MethodGet,
			wantCode: http.StatusMethodNotAllowed,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			mock := newMockManager()
			mock.refreshErr = testCase.refreshErr
			s := NewService("127.0.0.1:0", mock)

			w := serve(t, s, testCase.method, "/refresh")

			assert.Equal(t, testCase.wantCode, w.Code)
			assert.Equal(t, testCase.wantCalls, mock.refreshed)
		})
	}
}

func TestActivityWebSocket(t *testing.T) {
	mock := newMockManager()
	server := httptest.NewServer(NewService("127.0.0.1:0", mock).Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return mock.activity.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	mock.activity.Publish(ddnsmgr.Activity{
		Kind:      ddnsmgr.AddressActivity,
		Type:      "CHANGED",
		Interface: "eth0",
		Addresses: map[string]string{"IPv4": "192.0.2.11"},
	})

	msgType, b, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, msgType)

	var got ddnsmgr.Activity
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, ddnsmgr.AddressActivity, got.Kind)
	assert.Equal(t, "CHANGED", got.Type)
	assert.Equal(t, "192.0.2.11", got.Addresses["IPv4"])

	// Closing the feed ends the stream.
	require.NoError(t, mock.activity.Close())
	_, _, err = c.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := NewService("127.0.0.1:0", newMockManager())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Start to return")
	}
}

func TestStart_ListenError(t *testing.T) {
	s := NewService("not-an-address", newMockManager())

	err := s.Start(context.Background())

	assert.ErrorContains(t, err, "listening on not-an-address")
}
