package key

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memorybank/keyctl/pkg/errutil"
	"github.com/memorybank/keyctl/pkg/keygen"

	"go.uber.org/zap"
)

const healthTimeout = 5 * time.Second

// HTTPBackend talks to the key-management REST endpoints of the backing
// service. Ownership is implicit: the server scopes every call to the
// credential carried in the X-API-Key header, so owner refs are never
// sent. Key material is minted server-side.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

func NewHTTPBackend(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPBackend {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (b *HTTPBackend) Name() string { return "api" }

func (b *HTTPBackend) Info() string { return b.baseURL }

func (b *HTTPBackend) RequiresOwnerRefs() bool { return false }

func (b *HTTPBackend) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errutil.Internal("failed to encode request body", errutil.WithErr(err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, errutil.Internal("failed to build request", errutil.WithErr(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errutil.Backend(fmt.Sprintf("%s %s failed", method, path), errutil.WithErr(err))
	}
	return resp, nil
}

// statusErr drains the response body into a backend error so the
// operator sees what the server said, not just the status code.
func statusErr(resp *http.Response, method, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	opts := []errutil.Option{}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		opts = append(opts, errutil.WithErr(errors.New(msg)))
	}
	return errutil.Backend(fmt.Sprintf("%s %s returned %s", method, path, resp.Status), opts...)
}

func (b *HTTPBackend) ListKeys(ctx context.Context, includeRevoked bool) ([]*Record, error) {
	path := "/api/keys"
	if includeRevoked {
		path += "?includeRevoked=true"
	}

	resp, err := b.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(resp, http.MethodGet, path)
	}

	var out struct {
		Keys []*Record `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errutil.Backend("failed to decode key list", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	for _, rec := range out.Keys {
		rec.DeriveStatus(now)
	}
	return out.Keys, nil
}

func (b *HTTPBackend) CreateKey(ctx context.Context, p CreateParams) (*Record, error) {
	if p.Environment == "" {
		p.Environment = keygen.EnvLive
	}
	if p.RateLimit <= 0 {
		p.RateLimit = DefaultRateLimit
	}

	body := struct {
		Label         *string  `json:"label,omitempty"`
		Environment   string   `json:"environment"`
		RateLimit     int      `json:"rateLimit"`
		ExpiresInDays int      `json:"expiresInDays,omitempty"`
		Scopes        []string `json:"scopes,omitempty"`
	}{
		Label:       p.Label,
		Environment: string(p.Environment),
		RateLimit:   p.RateLimit,
		Scopes:      p.Scopes,
	}
	if p.ExpiresInDays > 0 {
		body.ExpiresInDays = p.ExpiresInDays
	}

	resp, err := b.do(ctx, http.MethodPost, "/api/keys", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(resp, http.MethodPost, "/api/keys")
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, errutil.Backend("failed to decode created key", errutil.WithErr(err))
	}
	rec.DeriveStatus(time.Now().UTC())

	b.log.Info("key created", zap.String("prefix", rec.Prefix))
	return &rec, nil
}

func (b *HTTPBackend) RevokeKey(ctx context.Context, id string) (bool, error) {
	path := "/api/keys/" + id

	resp, err := b.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		b.log.Info("key revoked", zap.String("key_id", id))
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		// Missing or already revoked: an expected outcome, not a failure.
		return false, nil
	default:
		return false, statusErr(resp, http.MethodDelete, path)
	}
}

// GetKeyInfo scans the full listing; the endpoint set has no per-key GET.
func (b *HTTPBackend) GetKeyInfo(ctx context.Context, id string) (*Record, error) {
	keys, err := b.ListKeys(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, rec := range keys {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, nil
}

func (b *HTTPBackend) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	resp, err := b.do(ctx, http.MethodGet, "/api/keys", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// Auth failures still prove the endpoint is up.
	return resp.StatusCode < 500
}
