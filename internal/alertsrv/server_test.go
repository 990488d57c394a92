package alertsrv

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaywire/voicebridge/internal/alert"
)

type stubPresence struct{ present bool }

func (s stubPresence) UserInVoice() bool { return s.present }

func newTestServer(t *testing.T, token string, presence PresenceChecker) (*Server, *alert.Inbox) {
	inbox := alert.New(alert.DefaultCap, alert.DefaultTTL)
	s := New("127.0.0.1", 0, token, inbox, presence)
	return s, inbox
}

func TestHandleAlertRequiresMessage(t *testing.T) {
	s, _ := newTestServer(t, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/alert", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	s.handleAlert(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAlertRejectsBadToken(t *testing.T) {
	s, _ := newTestServer(t, "secret", nil)
	req := httptest.NewRequest(http.MethodPost, "/alert", bytes.NewBufferString(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	s.handleAlert(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleAlertQueuesAndReportsPresence(t *testing.T) {
	s, inbox := newTestServer(t, "secret", stubPresence{present: true})
	req := httptest.NewRequest(http.MethodPost, "/alert", bytes.NewBufferString(`{"message":"server down","priority":"urgent"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.handleAlert(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp alertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.True(t, resp.Queued)
	assert.True(t, resp.UserInVoice)
	assert.Equal(t, 1, inbox.Len())

	drained := inbox.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, alert.Urgent, drained[0].Priority)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, "", nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestHandleAlertDefaultsToNormalPriority(t *testing.T) {
	s, inbox := newTestServer(t, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/alert", bytes.NewBufferString(`{"message":"fyi"}`))
	w := httptest.NewRecorder()
	s.handleAlert(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	drained := inbox.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, alert.Normal, drained[0].Priority)
	assert.WithinDuration(t, time.Now(), drained[0].CreatedAt, time.Second)
}
