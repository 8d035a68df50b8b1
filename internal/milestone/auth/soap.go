// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xg2g/internal/milestone/model"
)

const (
	soapLoginPath   = "/ManagementServer/ServerCommandServiceOAuth.svc"
	soapLoginAction = "http://videoos.net/2/XProtectCSServerCommand/IServerCommandService/Login"
)

const soapLoginEnvelope = `<?xml version="1.0" encoding="utf-8"?>` +
	`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/" xmlns:a="http://videoos.net/2/XProtectCSServerCommand">` +
	`<soap:Body><a:Login><a:instanceId>%s</a:instanceId><a:currentToken></a:currentToken></a:Login></soap:Body>` +
	`</soap:Envelope>`

// tagPattern builds a namespace-insensitive, case-insensitive matcher for
// <name>...</name>, tolerating an optional namespace prefix
// such as "a:" as emitted by the .NET SOAP stack (<a:Token>...</a:Token>).
func tagPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<(?:\w+:)?` + name + `[^>]*>(.*?)</(?:\w+:)?` + name + `>`)
}

var (
	tokenTagPattern      = tagPattern("Token")
	statusTagPattern     = tagPattern("Status")
	microsecondsPattern  = tagPattern("MicroSeconds")
)

// requestSOAPLogin POSTs the Login SOAP envelope and extracts the session
// token and its TTL from the response body.
func requestSOAPLogin(ctx context.Context, httpClient *http.Client, baseURL, oauthToken, instanceID string) (model.Token, error) {
	endpoint := strings.TrimRight(baseURL, "/") + soapLoginPath
	body := fmt.Sprintf(soapLoginEnvelope, instanceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapLoginAction)
	req.Header.Set("Authorization", "Bearer "+oauthToken)

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Token{}, &AuthError{Kind: KindSoapLoginFailed, Err: fmt.Errorf("soap login returned %d", resp.StatusCode)}
	}

	text := string(respBody)

	if m := statusTagPattern.FindStringSubmatch(text); m != nil && !strings.EqualFold(strings.TrimSpace(m[1]), "success") {
		return model.Token{}, &AuthError{Kind: KindSoapLoginFailed, Err: fmt.Errorf("soap login status %q", m[1])}
	}

	m := tokenTagPattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return model.Token{}, &AuthError{Kind: KindSoapLoginFailed, Err: fmt.Errorf("soap login response missing Token element")}
	}
	token := strings.TrimSpace(m[1])

	ttl := 60 * time.Second
	if mm := microsecondsPattern.FindStringSubmatch(text); mm != nil {
		if us, err := strconv.ParseInt(strings.TrimSpace(mm[1]), 10, 64); err == nil && us > 0 {
			ttl = time.Duration(us) * time.Microsecond
		}
	}

	return model.Token{
		Value:     token,
		ExpiresAt: start.Add(ttl),
	}, nil
}
