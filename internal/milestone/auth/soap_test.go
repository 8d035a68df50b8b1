// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soapLoginResponseTmpl = `<?xml version="1.0" encoding="utf-8"?>` +
	`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:a="http://videoos.net/2/XProtectCSServerCommand">` +
	`<soap:Body><a:LoginResponse><a:LoginResult><a:Status>%s</a:Status><a:Token>%s</a:Token>` +
	`<a:TimeToLive><a:MicroSeconds>%d</a:MicroSeconds></a:TimeToLive></a:LoginResult></a:LoginResponse></soap:Body>` +
	`</soap:Envelope>`

func TestRequestSOAPLogin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ManagementServer/ServerCommandServiceOAuth.svc", r.URL.Path)
		assert.Equal(t, "Bearer oauth-tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<a:instanceId>inst-1</a:instanceId>")

		w.Header().Set("Content-Type", "text/xml")
		resp := fmt.Sprintf(soapLoginResponseTmpl, "Success", "session-tok-1", 30_000_000)
		_, _ = w.Write([]byte(resp))
	}))
	defer srv.Close()

	tok, err := requestSOAPLogin(context.Background(), srv.Client(), srv.URL, "oauth-tok", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "session-tok-1", tok.Value)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), tok.ExpiresAt, 2*time.Second)
}

func TestRequestSOAPLogin_UnprefixedTagsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<Envelope><Body><LoginResult><Status>Success</Status>` +
			`<Token>plain-tok</Token></LoginResult></Body></Envelope>`))
	}))
	defer srv.Close()

	tok, err := requestSOAPLogin(context.Background(), srv.Client(), srv.URL, "oauth-tok", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "plain-tok", tok.Value)
	// No MicroSeconds element present: falls back to the default TTL.
	assert.WithinDuration(t, time.Now().Add(60*time.Second), tok.ExpiresAt, 2*time.Second)
}

func TestRequestSOAPLogin_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(soapLoginResponseTmpl, "Failed", "", 0)))
	}))
	defer srv.Close()

	_, err := requestSOAPLogin(context.Background(), srv.Client(), srv.URL, "oauth-tok", "inst-1")
	require.Error(t, err)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindSoapLoginFailed, ae.Kind)
}

func TestRequestSOAPLogin_MissingTokenElementFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<Envelope><Body><LoginResult><Status>Success</Status></LoginResult></Body></Envelope>`))
	}))
	defer srv.Close()

	_, err := requestSOAPLogin(context.Background(), srv.Client(), srv.URL, "oauth-tok", "inst-1")
	require.Error(t, err)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindSoapLoginFailed, ae.Kind)
}

func TestRequestSOAPLogin_HTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := requestSOAPLogin(context.Background(), srv.Client(), srv.URL, "oauth-tok", "inst-1")
	require.Error(t, err)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindSoapLoginFailed, ae.Kind)
}
