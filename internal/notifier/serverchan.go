package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ServerChanNotifier pushes to every configured ServerChan send key.
type ServerChanNotifier struct {
	Keys    []string
	BaseURL string
	Client  *http.Client

	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewServerChanNotifier creates a push notifier. Keys are paced at one
// request per second.
func NewServerChanNotifier(keys []string, baseURL, proxyURL string, log zerolog.Logger) (*ServerChanNotifier, error) {
	transport, err := proxyTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &ServerChanNotifier{
		Keys:    keys,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     log.With().Str("channel", "serverchan").Logger(),
	}, nil
}

func (s *ServerChanNotifier) Name() string { return "serverchan" }

func (s *ServerChanNotifier) Enabled() bool {
	for _, k := range s.Keys {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

// SetRate changes the per-key pacing. Used by tests.
func (s *ServerChanNotifier) SetRate(r rate.Limit, burst int) {
	s.limiter = rate.NewLimiter(r, burst)
}

type serverChanResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send posts to each key in turn. A key rejected by the API is logged and
// skipped; transport and decoding errors abort and are returned.
func (s *ServerChanNotifier) Send(ctx context.Context, title, body string) error {
	form := url.Values{}
	form.Set("title", title)
	form.Set("desp", body)
	encoded := form.Encode()

	for _, key := range s.Keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		res, err := s.post(ctx, key, encoded)
		if err != nil {
			return err
		}
		if res.Code == 0 {
			s.log.Info().Str("key", maskKey(key)).Msg("push sent")
		} else {
			s.log.Error().Str("key", maskKey(key)).Int("code", res.Code).Str("message", res.Message).Msg("push rejected")
		}
	}
	return nil
}

func (s *ServerChanNotifier) post(ctx context.Context, key, form string) (*serverChanResponse, error) {
	endpoint := fmt.Sprintf("%s/%s.send", s.BaseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serverchan request: %w", err)
	}
	defer resp.Body.Close()

	var res serverChanResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode serverchan response (status %d): %w", resp.StatusCode, err)
	}
	return &res, nil
}

// maskKey keeps only the first four characters of a send key for logs.
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
