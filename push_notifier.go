package taskengine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Songmu/flextime"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mashiike/taskengine/a2a"
)

// Header and query names used by the HTTP push notification protocol.
const (
	NotificationTokenHeader = "X-A2A-Notification-Token"
	ValidationTokenParam    = "validationToken"
)

//go:generate go tool mockgen -source=push_notifier.go -destination=mock_push_notifier_test.go -package=taskengine

// PushNotificationSender delivers task events to client webhooks.
type PushNotificationSender interface {
	// VerifyURL reports whether url is an endpoint willing to receive notifications.
	VerifyURL(ctx context.Context, url string) bool
	// Send delivers event to the endpoint described by config (at-least-once).
	Send(ctx context.Context, config a2a.PushNotificationConfig, event a2a.StreamResponse) error
}

// HTTPPushNotificationSender implements PushNotificationSender over HTTP.
//
// VerifyURL issues GET url?validationToken=<random> and expects the token echoed
// back in the body. Send POSTs the event as JSON. When the config carries
// bearer credentials they are sent as is; otherwise, if SigningKey is set, a
// short-lived HS256 JWT bound to the payload hash is sent instead.
type HTTPPushNotificationSender struct {
	Client *http.Client

	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration

	// SkipVerification accepts every http(s) URL without the challenge request.
	SkipVerification bool

	IDGenerator IDGenerator
	Logger      *slog.Logger
}

// NewHTTPPushNotificationSender creates a sender with a 30 second client timeout.
func NewHTTPPushNotificationSender() *HTTPPushNotificationSender {
	return &HTTPPushNotificationSender{
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		Issuer:      "taskengine",
		TokenTTL:    5 * time.Minute,
		IDGenerator: DefaultIDGenerator{},
		Logger:      slog.Default(),
	}
}

func (n *HTTPPushNotificationSender) VerifyURL(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if n.SkipVerification {
		return true
	}

	challenge := n.IDGenerator.GenerateMessageID()
	q := u.Query()
	q.Set(ValidationTokenParam, challenge)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		n.Logger.Debug("Push notification url verification request failed", "url", rawURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.Logger.Debug("Push notification url rejected verification", "url", rawURL, "status", resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(body)) == challenge
}

func (n *HTTPPushNotificationSender) Send(ctx context.Context, config a2a.PushNotificationConfig, event a2a.StreamResponse) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal push notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create push notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch {
	case hasBearerCredentials(config.Authentication):
		req.Header.Set("Authorization", "Bearer "+config.Authentication.Credentials)
	case len(n.SigningKey) > 0:
		token, err := n.signPayload(payload)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if config.Token != "" {
		req.Header.Set(NotificationTokenHeader, config.Token)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PushNotificationError{
			StatusCode: resp.StatusCode,
			URL:        config.URL,
		}
	}
	return nil
}

func hasBearerCredentials(auth *a2a.PushNotificationAuthenticationInfo) bool {
	if auth == nil || auth.Credentials == "" {
		return false
	}
	if len(auth.Schemes) == 0 {
		return true
	}
	return slices.ContainsFunc(auth.Schemes, func(s string) bool {
		return strings.EqualFold(s, "bearer")
	})
}

func (n *HTTPPushNotificationSender) signPayload(payload []byte) (string, error) {
	now := flextime.Now()
	sum := sha256.Sum256(payload)
	claims := jwt.MapClaims{
		"iss":                 n.Issuer,
		"iat":                 now.Unix(),
		"exp":                 now.Add(n.TokenTTL).Unix(),
		"request_body_sha256": hex.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign push notification token: %w", err)
	}
	return token, nil
}

// PushNotificationError represents an error during push notification delivery
type PushNotificationError struct {
	StatusCode int
	URL        string
}

func (e *PushNotificationError) Error() string {
	return fmt.Sprintf("push notification failed: HTTP %d for URL %s", e.StatusCode, e.URL)
}
