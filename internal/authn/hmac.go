package authn

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-auth-server/internal/cache"
	"go-auth-server/internal/event"
	"go-auth-server/pkg/apierror"
)

const HMACSchemeName = "HMAC-SHA256"

type HMACConfig struct {
	TimestampHeader string
	NonceHeader     string
	// Threshold bounds both the accepted clock skew and the nonce memory.
	Threshold time.Duration
	// MaxBodyBytes caps the body buffered for signing.
	MaxBodyBytes int64
}

const defaultHMACMaxBodyBytes = 1 << 20

func DefaultHMACConfig() HMACConfig {
	return HMACConfig{
		TimestampHeader: "Timestamp",
		NonceHeader:     "Nonce",
		Threshold:       300 * time.Second,
		MaxBodyBytes:    defaultHMACMaxBodyBytes,
	}
}

// HMAC authenticates requests signed with a confidential client's secret. Each nonce is
// accepted once per client.
type HMAC struct {
	credentials CredentialStore
	nonces      cache.Store
	cfg         HMACConfig
	events      event.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewHMAC(credentials CredentialStore, nonces cache.Store, cfg HMACConfig, events event.Publisher, logger *slog.Logger) *HMAC {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = event.Nop
	}
	defaults := DefaultHMACConfig()
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = defaults.TimestampHeader
	}
	if cfg.NonceHeader == "" {
		cfg.NonceHeader = defaults.NonceHeader
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaults.Threshold
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	return &HMAC{
		credentials: credentials,
		nonces:      nonces,
		cfg:         cfg,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

func (h *HMAC) Name() string { return HMACSchemeName }

func (h *HMAC) Authenticate(r *http.Request) (*Result, error) {
	raw, ok := schemeCredentials(r, HMACSchemeName)
	if !ok {
		return nil, nil
	}

	clientID, signature, found := strings.Cut(raw, ":")
	if !found || clientID == "" || signature == "" {
		return nil, apierror.AuthenticationFailed("invalid hmac header: expected client_id:signature")
	}
	timestamp := r.Header.Get(h.cfg.TimestampHeader)
	nonce := r.Header.Get(h.cfg.NonceHeader)
	if timestamp == "" || nonce == "" {
		return nil, apierror.AuthenticationFailed(fmt.Sprintf("%s and %s headers are required", h.cfg.TimestampHeader, h.cfg.NonceHeader))
	}

	ctx := r.Context()
	client, err := h.credentials.GetClient(ctx, clientID)
	if errors.Is(err, apierror.ErrNotFound) {
		return nil, apierror.InvalidClient("unknown client")
	}
	if err != nil {
		return nil, err
	}
	if !client.IsConfidential() {
		return nil, apierror.InvalidClient("client cannot sign requests")
	}

	key, err := h.credentials.ClientSigningKey(client)
	if err != nil {
		return nil, err
	}
	body, err := readBody(r, h.cfg.MaxBodyBytes)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, apierror.PayloadTooLarge(tooLarge.Limit)
	}
	if err != nil {
		return nil, apierror.AuthenticationFailed("could not read request body")
	}

	expected := Sign(key, r.Method, r.URL.RequestURI(), body, timestamp, nonce)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		h.logger.Warn("hmac verification failed", "client_id", clientID, "reason", "signature")
		return nil, apierror.InvalidSignature()
	}

	// freshness and replay are only checked for authentic requests
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, apierror.ExpiredTimestamp()
	}
	skew := h.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > h.cfg.Threshold {
		h.logger.Warn("hmac verification failed", "client_id", clientID, "reason", "timestamp", "skew", skew)
		return nil, apierror.ExpiredTimestamp()
	}

	// nonces outlive the freshness window on both sides of now
	recorded, err := h.nonces.SetNX(ctx, NonceKey(clientID, nonce), []byte(timestamp), 2*h.cfg.Threshold)
	if err != nil {
		return nil, err
	}
	if !recorded {
		h.logger.Warn("hmac verification failed", "client_id", clientID, "reason", "replayed_nonce")
		h.events.Publish(event.New(event.TypeNonceReplayed, clientID, map[string]any{"path": r.URL.Path}))
		return nil, apierror.ReplayedNonce()
	}

	return &Result{Principal: client}, nil
}

func NonceKey(clientID string, nonce string) string {
	return "nonce:" + clientID + ":" + nonce
}

// Sign computes the lowercase hex HMAC-SHA256 of method || uri || body || timestamp || nonce.
func Sign(key []byte, method string, uri string, body []byte, timestamp string, nonce string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(method))
	mac.Write([]byte(uri))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// readBody drains at most limit bytes of the body and puts it back for the handler.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
