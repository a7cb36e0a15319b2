// Package captcha provides challenge-token verification.
package captcha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadline/leadline/adapters/metrics"
	"github.com/leadline/leadline/ports"
	"github.com/rs/zerolog"
)

// DefaultEndpoint is the hCaptcha verification URL.
const DefaultEndpoint = "https://hcaptcha.com/siteverify"

// HCaptcha verifies tokens against the hCaptcha siteverify API. With no
// secret configured every token passes (the feature is off). Verification
// failures and transport errors both fail the check and are recorded, never
// propagated: a broken captcha backend must not 500 a signup.
type HCaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
	log      zerolog.Logger
	rings    *metrics.Rings
}

// New creates a verifier. rings may be nil.
func New(secret string, log zerolog.Logger, rings *metrics.Rings) *HCaptcha {
	return &HCaptcha{
		secret:   secret,
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		rings:    rings,
	}
}

// SetEndpoint overrides the verification URL (for tests).
func (h *HCaptcha) SetEndpoint(endpoint string) {
	h.endpoint = endpoint
}

// Verify returns true when the token is valid.
func (h *HCaptcha) Verify(ctx context.Context, token, remoteIP string) bool {
	if h.secret == "" {
		return true
	}

	form := url.Values{
		"secret":   {h.secret},
		"response": {token},
		"remoteip": {remoteIP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		h.fail("hcaptcha_request_error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail("hcaptcha_request_error", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		h.fail("hcaptcha_read_error", err)
		return false
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		h.fail("hcaptcha_parse_error", err)
		return false
	}
	return result.Success
}

func (h *HCaptcha) fail(event string, err error) {
	h.log.Warn().Err(err).Msg(event)
	if h.rings != nil {
		h.rings.RecordError(event + ":" + err.Error())
	}
}

// Ensure interface compliance.
var _ ports.CaptchaVerifier = (*HCaptcha)(nil)
