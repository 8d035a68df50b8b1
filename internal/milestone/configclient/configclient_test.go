// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package configclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct {
	token string
	err   error
	calls atomic.Int32
}

func (f *fakeTokenSource) OAuthToken(ctx context.Context) (model.Token, error) {
	f.calls.Add(1)
	if f.err != nil {
		return model.Token{}, f.err
	}
	return model.Token{Value: f.token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

const camerasBody = `{"array":[
	{"id":"cam-1","displayName":"Lobby","enabled":true},
	{"id":"cam-2","displayName":"Dock","enabled":false}
]}`

const recordingServersBody = `{"array":[
	{"id":"rec-1","hostName":"rs1.example.com","port":7563,"cameraIds":["cam-1"]},
	{"id":"rec-2","hostName":"rs2.example.com","port":0,"cameraIds":["cam-2"]}
]}`

func newFakeManagementServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(camerasPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(camerasBody))
	})
	mux.HandleFunc(recordingServersPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(recordingServersBody))
	})
	return httptest.NewServer(mux)
}

func TestClient_ListCameras_MergesRecordingServerInfo(t *testing.T) {
	srv := newFakeManagementServer()
	defer srv.Close()

	auth := &fakeTokenSource{token: "tok"}
	c := New(Config{BaseURL: srv.URL}, auth)

	cams, err := c.ListCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, cams, 2)

	byID := map[string]model.Camera{}
	for _, cam := range cams {
		byID[cam.ID] = cam
	}

	assert.Equal(t, "rs1.example.com", byID["cam-1"].RecordingServerHost)
	assert.Equal(t, 7563, byID["cam-1"].RecordingServerPort)
	assert.True(t, byID["cam-1"].Enabled)

	// cam-2's server has port 0 in the wire payload, which must default to 7563.
	assert.Equal(t, "rs2.example.com", byID["cam-2"].RecordingServerHost)
	assert.Equal(t, 7563, byID["cam-2"].RecordingServerPort)
	assert.False(t, byID["cam-2"].Enabled)
}

func TestClient_ResolveRecorder_Found(t *testing.T) {
	srv := newFakeManagementServer()
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &fakeTokenSource{token: "tok"})

	host, port, err := c.ResolveRecorder(context.Background(), "cam-1")
	require.NoError(t, err)
	assert.Equal(t, "rs1.example.com", host)
	assert.Equal(t, 7563, port)
}

func TestClient_ResolveRecorder_NotFound(t *testing.T) {
	srv := newFakeManagementServer()
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &fakeTokenSource{token: "tok"})

	_, _, err := c.ResolveRecorder(context.Background(), "cam-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrCameraNotFound))
}

func TestClient_Get_PropagatesTokenSourceError(t *testing.T) {
	srv := newFakeManagementServer()
	defer srv.Close()

	boom := errors.New("broker unavailable")
	c := New(Config{BaseURL: srv.URL}, &fakeTokenSource{err: boom})

	_, err := c.ListCameras(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestClient_Get_UnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &fakeTokenSource{token: "tok"})
	_, err := c.ListCameras(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnauthorized))
}

func TestClient_Get_SendsBearerToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc(camerasPath, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"array":[]}`))
	})
	mux.HandleFunc(recordingServersPath, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"array":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, &fakeTokenSource{token: "secret-tok"})
	_, err := c.ListCameras(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-tok", gotAuth)
}

func TestClient_Get_RateLimiterThrottlesBurst(t *testing.T) {
	srv := newFakeManagementServer()
	defer srv.Close()

	auth := &fakeTokenSource{token: "tok"}
	c := New(Config{BaseURL: srv.URL}, auth)
	c.limiter.SetLimit(2)
	c.limiter.SetBurst(1)

	start := time.Now()
	for i := 0; i < 2; i++ {
		_, err := c.ListCameras(context.Background())
		require.NoError(t, err)
	}
	// Each ListCameras issues two GETs; with burst 1 at 2 rps, the three
	// GETs after the first must each wait, so the total noticeably
	// exceeds an unthrottled run.
	assert.Greater(t, time.Since(start), 500*time.Millisecond)
}
