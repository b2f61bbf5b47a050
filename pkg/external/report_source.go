package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/care-pathway-engine/internal/domain"
)

// ReportSourceClient fetches a contact and its report history from the host
// system's HTTP API.
type ReportSourceClient struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	rateLimit      *rate.Limiter
	retryCount     int
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logrus.Logger
}

// contactHistoryResponse is the JSON body of GET /contacts/{id}/history.
type contactHistoryResponse struct {
	Contact domain.Person   `json:"contact"`
	Reports []domain.Report `json:"reports"`
}

// errServerStatus marks responses worth retrying.
var errServerStatus = errors.New("report source server error")

// NewReportSourceClient creates a client with rate limiting and a circuit
// breaker.
func NewReportSourceClient(config domain.ReportSourceConfig, logger *logrus.Logger) (*ReportSourceClient, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("report source base URL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid report source base URL: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "ReportSource",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &ReportSourceClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit:      rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		retryCount:     config.RetryCount,
		circuitBreaker: gobreaker.NewCircuitBreaker(settings),
		logger:         logger,
	}, nil
}

// FetchContact implements domain.ReportSource. The returned request carries
// no evaluation instant.
func (c *ReportSourceClient) FetchContact(ctx context.Context, contactID string) (*domain.EvaluationRequest, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, fmt.Errorf("%w: contact id cannot be empty", domain.ErrInvalidPerson)
	}

	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx, contactID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("report source unavailable (circuit breaker open): %w", err)
		}
		return nil, err
	}

	history := result.(*contactHistoryResponse)
	if history.Contact.ID == "" {
		history.Contact.ID = contactID
	}
	return &domain.EvaluationRequest{Person: history.Contact, Reports: history.Reports}, nil
}

// State returns the circuit breaker state.
func (c *ReportSourceClient) State() gobreaker.State {
	return c.circuitBreaker.State()
}

// Counts returns the circuit breaker counters.
func (c *ReportSourceClient) Counts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

func (c *ReportSourceClient) fetchWithRetry(ctx context.Context, contactID string) (*contactHistoryResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		history, err := c.fetch(ctx, contactID)
		if err == nil {
			return history, nil
		}
		lastErr = err
		if !errors.Is(err, errServerStatus) {
			return nil, err
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"contact_id": contactID,
			"attempt":    attempt + 1,
		}).Debug("Retrying report source request")
	}
	return nil, lastErr
}

func (c *ReportSourceClient) fetch(ctx context.Context, contactID string) (*contactHistoryResponse, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	endpoint := fmt.Sprintf("%s/contacts/%s/history", c.baseURL, url.PathEscape(contactID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "care-pathway-engine/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errServerStatus, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("contact %s: %w", contactID, domain.ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", errServerStatus, resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("report source returned status %d: %s", resp.StatusCode, string(body))
	}

	var history contactHistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &history, nil
}
