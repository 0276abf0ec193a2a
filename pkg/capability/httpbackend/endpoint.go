// Package httpbackend serves pipeline capabilities from JSON-over-HTTP
// generation services. Every endpoint sits behind its own circuit breaker.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/httpclient"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/storage"
	"media-pipeline-go/pkg/utils"
)

// generationResponse is the body every generation service answers with.
// The artifact comes either inline (base64 data) or as a URL to fetch.
type generationResponse struct {
	URL             string   `json:"url,omitempty"`
	Data            string   `json:"data,omitempty"`
	Adherence       *float64 `json:"adherence,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
}

// Endpoint is one generation service
type Endpoint struct {
	name    string
	url     string
	apiKey  string
	timeout time.Duration
	client  httpclient.Client
	breaker *gobreaker.CircuitBreaker
	store   storage.Storage
	logger  *zap.Logger
}

// NewEndpoint validates the endpoint configuration and sets up its breaker
func NewEndpoint(name string, cfg config.EndpointConfig, breakerCfg config.BreakerConfig,
	client httpclient.Client, store storage.Storage, logger *zap.Logger) (*Endpoint, error) {
	if err := utils.ValidateURL(cfg.URL); err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", name, err)
	}

	return &Endpoint{
		name:    name,
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: config.ParseDuration(cfg.Timeout, 0),
		client:  client,
		breaker: newBreaker(name, breakerCfg, logger),
		store:   store,
		logger:  logger.With(zap.String("endpoint", name)),
	}, nil
}

func newBreaker(name string, cfg config.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 3
	}
	failureRatio := cfg.FailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    config.ParseDuration(cfg.Interval, 60*time.Second),
		Timeout:     config.ParseDuration(cfg.Timeout, 30*time.Second),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && ratio >= failureRatio
		},
		// a rejected prompt says nothing about the health of the service
		IsSuccessful: func(err error) bool {
			return err == nil || job.ClassOf(err) == job.ClassPermanent
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// generate posts payload, fetches the produced artifact and stores it under key
func (e *Endpoint) generate(ctx context.Context, payload interface{}, key string) (*generationResponse, *storage.Object, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.call(ctx, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, nil, job.CapacityExceeded(e.name, err)
		}
		return nil, nil, err
	}

	fetched := result.(*fetchedArtifact)
	obj, err := e.store.PutObject(ctx, key, bytes.NewReader(fetched.content))
	if err != nil {
		return nil, nil, job.Transient(e.name, utils.WrapError(err, "store artifact"))
	}
	if obj.Size == 0 {
		obj.Size = int64(len(fetched.content))
	}

	e.logger.Debug("Generated artifact",
		zap.String("key", key),
		zap.Int64("size", obj.Size))

	return fetched.response, obj, nil
}

type fetchedArtifact struct {
	response *generationResponse
	content  []byte
}

func (e *Endpoint) call(ctx context.Context, payload interface{}) (*fetchedArtifact, error) {
	opts := []httpclient.RequestOption{httpclient.WithBearerToken(e.apiKey)}
	if e.timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(e.timeout))
	}

	resp, err := e.client.PostJSON(ctx, e.url, payload, opts...)
	if err != nil {
		return nil, classifyTransport(e.name, err)
	}
	if err := resp.Err(); err != nil {
		return nil, classifyStatus(e.name, resp.StatusCode, err)
	}

	var out generationResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, job.Permanent(e.name, err)
	}

	var content []byte
	switch {
	case out.Data != "":
		content, err = base64.StdEncoding.DecodeString(out.Data)
		if err != nil {
			return nil, job.Permanent(e.name, fmt.Errorf("invalid inline artifact: %w", err))
		}
	case out.URL != "":
		fetched, err := e.client.Get(ctx, out.URL, opts...)
		if err != nil {
			return nil, classifyTransport(e.name, err)
		}
		if err := fetched.Err(); err != nil {
			return nil, classifyStatus(e.name, fetched.StatusCode, err)
		}
		content = fetched.Body
	default:
		return nil, job.Permanent(e.name, errors.New("response carries no artifact"))
	}

	if len(content) == 0 {
		return nil, job.Transient(e.name, errors.New("empty artifact"))
	}

	return &fetchedArtifact{response: &out, content: content}, nil
}

// classifyStatus maps HTTP statuses onto failure classes
func classifyStatus(op string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return job.CapacityExceeded(op, err)
	case status == http.StatusRequestTimeout || status >= 500:
		return job.Transient(op, err)
	default:
		return job.Permanent(op, err)
	}
}

// classifyTransport treats every failure below HTTP as retryable
func classifyTransport(op string, err error) error {
	if utils.IsTimeoutError(err) || utils.IsNetworkError(err) {
		return job.Transient(op, err)
	}
	return job.Transient(op, utils.WrapError(err, "transport"))
}
