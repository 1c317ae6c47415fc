package campus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient implements Client using the campus REST API.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPClient creates a client with optional proxy support. An unusable
// proxy URL is an error.
func NewHTTPClient(baseURL, proxyURL string) (*HTTPClient, error) {
	transport, err := proxyTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

func proxyTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{}
	if proxyURL == "" {
		return transport, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse proxy url %q: scheme and host are required", proxyURL)
	}
	transport.Proxy = http.ProxyURL(u)
	return transport, nil
}

type tokenResponse struct {
	UserToken    string `json:"user_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *HTTPClient) Login(ctx context.Context, account, password string) (Session, error) {
	var tok tokenResponse
	body := map[string]string{"account": account, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", nil, body, &tok); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c.session(tok)
}

func (c *HTTPClient) Resume(ctx context.Context, cred Credential) (Session, error) {
	var tok tokenResponse
	body := map[string]string{"refresh_token": cred.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", cred.UserToken, nil, body, &tok); err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if tok.UserToken == "" {
		tok.UserToken = cred.UserToken
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = cred.RefreshToken
	}
	return c.session(tok)
}

func (c *HTTPClient) session(tok tokenResponse) (Session, error) {
	cred := Credential{UserToken: tok.UserToken, RefreshToken: tok.RefreshToken}
	if !cred.Valid() {
		return nil, fmt.Errorf("campus returned an incomplete token pair")
	}
	return &httpSession{c: c, cred: cred}, nil
}

// do sends a JSON request and decodes a JSON response into out. HTTP 401 is
// reported as ErrNotAuthenticated.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, header map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d, body: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type httpSession struct {
	c    *HTTPClient
	cred Credential
}

func (s *httpSession) Credential() Credential { return s.cred }

func (s *httpSession) OpenECard(ctx context.Context) (ECard, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := s.c.do(ctx, http.MethodPost, "/ecard/sessions", s.cred.UserToken, nil, struct{}{}, &out); err != nil {
		return nil, fmt.Errorf("open ecard: %w", err)
	}
	if out.SessionID == "" {
		return nil, fmt.Errorf("open ecard: empty session id")
	}
	return &httpECard{c: s.c, token: s.cred.UserToken, id: out.SessionID}, nil
}

func (s *httpSession) Close(ctx context.Context) error {
	return s.c.do(ctx, http.MethodPost, "/auth/logout", s.cred.UserToken, nil, nil, nil)
}

type httpECard struct {
	c     *HTTPClient
	token string
	id    string
}

func (e *httpECard) RemainingPower(ctx context.Context, room string) (float64, error) {
	var out struct {
		Balance *float64 `json:"balance"`
	}
	path := "/ecard/rooms/" + url.PathEscape(room) + "/power"
	if err := e.c.do(ctx, http.MethodGet, path, e.token, e.header(), nil, &out); err != nil {
		return 0, err
	}
	if out.Balance == nil {
		return 0, fmt.Errorf("room %s: response has no balance", room)
	}
	return *out.Balance, nil
}

func (e *httpECard) Close(ctx context.Context) error {
	return e.c.do(ctx, http.MethodDelete, "/ecard/sessions/"+url.PathEscape(e.id), e.token, e.header(), nil, nil)
}

func (e *httpECard) header() map[string]string {
	return map[string]string{"X-ECard-Session": e.id}
}
