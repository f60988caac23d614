// Package services provides external service integrations and technical concerns like notifications and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/food-parcel/config"
	"github.com/amirphl/food-parcel/utils"
	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// SendResult is the provider outcome of one message. Success false with a
// nil error means the provider rejected the message.
type SendResult struct {
	Success    bool
	ProviderID *string
	Error      string
}

// SMSProvider sends a single text message
type SMSProvider interface {
	Send(ctx context.Context, to, text string) (*SendResult, error)
}

// NewSMSProvider builds the configured provider wrapped in a rate limiter.
// TestMode replaces any provider with a simulated one.
func NewSMSProvider(cfg config.SMSConfig, logger zerolog.Logger) (SMSProvider, error) {
	var provider SMSProvider
	switch {
	case cfg.TestMode:
		provider = NewTestModeSMSProvider(logger)
	case cfg.Provider == config.SMSProviderHTTP:
		provider = NewHTTPSMSProvider(cfg)
	case cfg.Provider == config.SMSProviderTwilio:
		provider = NewTwilioSMSProvider(cfg)
	case cfg.Provider == config.SMSProviderMock, cfg.Provider == "":
		provider = NewMockSMSProvider()
	default:
		return nil, fmt.Errorf("unknown SMS provider %q", cfg.Provider)
	}
	return NewRateLimitedSMSProvider(provider, cfg.RatePerSecond, cfg.RateBurst), nil
}

// HTTPSMSProvider posts JSON to a gateway exposing /api/v3.0.1/send
type HTTPSMSProvider struct {
	config config.SMSConfig
	client *http.Client
}

// SMSRequest represents the request payload for SMS API
type SMSRequest struct {
	SrcNum         string `json:"srcNum"`
	Recipient      string `json:"recipient"`
	Body           string `json:"body"`
	RetryCount     int    `json:"retryCount"`
	Type           int    `json:"type"` // Always 1
	ValidityPeriod int    `json:"validityPeriod"`
}

// SMSResponse represents individual message result from SMS API
type SMSResponse struct {
	MessageID  int64  `json:"messageId"`
	SrcNum     string `json:"srcNum"`
	Recipient  string `json:"recipient"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
}

func NewHTTPSMSProvider(cfg config.SMSConfig) *HTTPSMSProvider {
	return &HTTPSMSProvider{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// endpoint accepts a bare domain or a full base URL
func (p *HTTPSMSProvider) endpoint() string {
	if strings.Contains(p.config.ProviderDomain, "://") {
		return strings.TrimRight(p.config.ProviderDomain, "/") + "/api/v3.0.1/send"
	}
	return fmt.Sprintf("https://%s/api/v3.0.1/send", p.config.ProviderDomain)
}

func (p *HTTPSMSProvider) Send(ctx context.Context, to, text string) (*SendResult, error) {
	requestBody, err := json.Marshal([]SMSRequest{{
		SrcNum:         p.config.SourceNumber,
		Recipient:      to,
		Body:           text,
		RetryCount:     p.config.RetryCount,
		Type:           1,
		ValidityPeriod: p.config.ValidityPeriod,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("SMS gateway unavailable: %s", resp.Status)
	}

	var results []SMSResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode SMS response: %w", err)
	}
	if len(results) == 0 {
		return &SendResult{Success: false, Error: "empty provider response"}, nil
	}

	r := results[0]
	if r.StatusCode != http.StatusOK || r.Status != "ACCEPTED" {
		return &SendResult{Success: false, Error: fmt.Sprintf("%s (%d)", r.Status, r.StatusCode)}, nil
	}
	return &SendResult{Success: true, ProviderID: utils.ToPtr(strconv.FormatInt(r.MessageID, 10))}, nil
}

// twilioMessageCreator is the part of the twilio REST client the provider uses
type twilioMessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMSProvider sends through the Twilio Messages API
type TwilioSMSProvider struct {
	api  twilioMessageCreator
	from string
}

func NewTwilioSMSProvider(cfg config.SMSConfig) *TwilioSMSProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &TwilioSMSProvider{api: client.Api, from: cfg.TwilioFromNumber}
}

func (p *TwilioSMSProvider) Send(ctx context.Context, to, text string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(text)

	resp, err := p.api.CreateMessage(params)
	if err != nil {
		return &SendResult{Success: false, Error: err.Error()}, nil
	}
	if resp.ErrorMessage != nil {
		return &SendResult{Success: false, Error: *resp.ErrorMessage, ProviderID: resp.Sid}, nil
	}
	return &SendResult{Success: true, ProviderID: resp.Sid}, nil
}

// TestModeSMSProvider logs messages and reports them as sent
type TestModeSMSProvider struct {
	logger zerolog.Logger
}

func NewTestModeSMSProvider(logger zerolog.Logger) *TestModeSMSProvider {
	return &TestModeSMSProvider{logger: logger.With().Str("component", "sms_test_mode").Logger()}
}

func (p *TestModeSMSProvider) Send(ctx context.Context, to, text string) (*SendResult, error) {
	p.logger.Info().Str("to", to).Int("length", len(text)).Msg("test mode: SMS not sent")
	return &SendResult{Success: true, ProviderID: utils.ToPtr("test-" + strconv.FormatInt(time.Now().UnixNano(), 10))}, nil
}

// MockSMSProvider records messages for tests. Set Fail or Err to simulate
// rejection or an unreachable provider.
type MockSMSProvider struct {
	mu           sync.Mutex
	SentMessages []MockSMSMessage
	Fail         func(to string) string
	Err          error
}

// MockSMSMessage represents a mock SMS message
type MockSMSMessage struct {
	Recipient string
	Message   string
	SentAt    time.Time
}

func NewMockSMSProvider() *MockSMSProvider {
	return &MockSMSProvider{SentMessages: make([]MockSMSMessage, 0)}
}

func (m *MockSMSProvider) Send(ctx context.Context, to, text string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Fail != nil {
		if reason := m.Fail(to); reason != "" {
			return &SendResult{Success: false, Error: reason}, nil
		}
	}
	m.SentMessages = append(m.SentMessages, MockSMSMessage{
		Recipient: to,
		Message:   text,
		SentAt:    utils.UTCNow(),
	})
	return &SendResult{Success: true, ProviderID: utils.ToPtr(fmt.Sprintf("mock-%d", len(m.SentMessages)))}, nil
}

// GetSentMessages returns a copy of all sent mock messages
func (m *MockSMSProvider) GetSentMessages() []MockSMSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSMSMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}

// ClearSentMessages clears the sent messages list
func (m *MockSMSProvider) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = make([]MockSMSMessage, 0)
}

// ErrRateLimitWait is returned when the context ends while waiting for a send slot
var ErrRateLimitWait = errors.New("sms rate limit wait aborted")

// RateLimitedSMSProvider throttles calls to the wrapped provider
type RateLimitedSMSProvider struct {
	next    SMSProvider
	limiter *rate.Limiter
}

// NewRateLimitedSMSProvider returns next unchanged when perSecond is not positive.
func NewRateLimitedSMSProvider(next SMSProvider, perSecond float64, burst int) SMSProvider {
	if perSecond <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSMSProvider{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p *RateLimitedSMSProvider) Send(ctx context.Context, to, text string) (*SendResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateLimitWait, err)
	}
	return p.next.Send(ctx, to, text)
}
