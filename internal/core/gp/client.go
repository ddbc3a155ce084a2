// Package gp is a client for the asynchronous geoprocessing job API: submit a
// job, poll it to a terminal status, then read named result parameters.
package gp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/observability"
)

// TokenFunc supplies the credential token for a request. An empty token
// means the endpoint needs none (for example a credential-injecting proxy).
type TokenFunc func(ctx context.Context) (string, error)

type Config struct {
	URL          string
	ProcessSR    model.SpatialReference
	OutSR        model.SpatialReference
	PollInterval time.Duration
	Token        TokenFunc
}

// ServiceError is an error envelope returned by the service itself
type ServiceError struct {
	HTTPStatus int      `json:"-"`
	Code       int      `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details"`
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	if e.Code != 0 {
		return fmt.Sprintf("geoprocessing error %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("geoprocessing error (http %d): %s", e.HTTPStatus, msg)
}

type Client struct {
	logger   *slog.Logger
	client   *http.Client
	cfg      Config
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, cfg Config) (*Client, error) {
	u, err := url.Parse(TaskBase(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parse geoprocessing url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("geoprocessing url %q must be absolute", cfg.URL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Client{
		logger:   logger,
		client:   client,
		cfg:      cfg,
		startNow: time.Now,
	}, nil
}

func (c *Client) URL() string { return TaskBase(c.cfg.URL) }

type jobInfo struct {
	JobID     string          `json:"jobId"`
	JobStatus model.JobStatus `json:"jobStatus"`
	Messages  []struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"messages"`
}

// SubmitJob submits req and waits until the job reaches a terminal status.
// The returned handle carries that status; a failed job is not an error.
func (c *Client) SubmitJob(ctx context.Context, req model.JobRequest) (model.JobHandle, error) {
	params, err := BuildSubmitParams(req, c.cfg.ProcessSR, c.cfg.OutSR)
	if err != nil {
		return model.JobHandle{}, err
	}
	if err := c.addToken(ctx, params); err != nil {
		return model.JobHandle{}, err
	}

	var info jobInfo
	start := c.startNow()
	err = c.do(ctx, http.MethodPost, SubmitEndpoint(c.cfg.URL), params, &info)
	observability.ObserveUpstreamLatency("submitJob", time.Since(start).Seconds())
	if err != nil {
		return model.JobHandle{}, fmt.Errorf("submit job: %w", err)
	}
	if info.JobID == "" {
		return model.JobHandle{}, errors.New("submit job: response has no jobId")
	}
	c.logger.DebugContext(ctx, "job submitted", "job_id", info.JobID, "status", string(info.JobStatus))

	return c.await(ctx, info)
}

func (c *Client) await(ctx context.Context, info jobInfo) (model.JobHandle, error) {
	if Terminal(info.JobStatus) {
		return model.JobHandle{JobID: info.JobID, Status: info.JobStatus}, nil
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return model.JobHandle{}, fmt.Errorf("await job %s: %w", info.JobID, ctx.Err())
		case <-ticker.C:
		}

		st, err := c.jobStatus(ctx, info.JobID)
		if err != nil {
			return model.JobHandle{}, err
		}
		if Terminal(st.JobStatus) {
			for _, m := range st.Messages {
				c.logger.DebugContext(ctx, "job message", "job_id", info.JobID, "type", m.Type, "text", m.Description)
			}
			return model.JobHandle{JobID: info.JobID, Status: st.JobStatus}, nil
		}
		c.logger.DebugContext(ctx, "job pending", "job_id", info.JobID, "status", string(st.JobStatus))
	}
}

// fetches the current status of a job once
func (c *Client) jobStatus(ctx context.Context, jobID string) (jobInfo, error) {
	params := url.Values{}
	params.Set("f", "json")
	if err := c.addToken(ctx, params); err != nil {
		return jobInfo{}, err
	}

	var info jobInfo
	start := c.startNow()
	err := c.do(ctx, http.MethodGet, JobEndpoint(c.cfg.URL, jobID), params, &info)
	observability.ObserveUpstreamLatency("jobStatus", time.Since(start).Seconds())
	if err != nil {
		return jobInfo{}, fmt.Errorf("job status %s: %w", jobID, err)
	}
	if info.JobID == "" {
		info.JobID = jobID
	}
	return info, nil
}

type resultData struct {
	ParamName string           `json:"paramName"`
	DataType  string           `json:"dataType"`
	Value     model.FeatureSet `json:"value"`
}

// GetResultData reads one named output parameter of a finished job
func (c *Client) GetResultData(ctx context.Context, jobID, param string) (model.FeatureSet, error) {
	params := url.Values{}
	params.Set("f", "json")
	if id := c.cfg.OutSR.ID(); id != 0 {
		params.Set("outSR", fmt.Sprint(id))
	}
	if err := c.addToken(ctx, params); err != nil {
		return model.FeatureSet{}, err
	}

	var rd resultData
	start := c.startNow()
	err := c.do(ctx, http.MethodGet, ResultEndpoint(c.cfg.URL, jobID, param), params, &rd)
	observability.ObserveUpstreamLatency("getResultData", time.Since(start).Seconds())
	if err != nil {
		return model.FeatureSet{}, fmt.Errorf("result %s of job %s: %w", param, jobID, err)
	}
	return rd.Value, nil
}

func (c *Client) addToken(ctx context.Context, params url.Values) error {
	if c.cfg.Token == nil {
		return nil
	}
	tok, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	if tok != "" {
		params.Set("token", tok)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	// the service reports most failures as 200 with an error envelope
	var env struct {
		Error *ServiceError `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil && env.Error != nil {
		env.Error.HTTPStatus = resp.StatusCode
		return env.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(b) > 8<<10 {
			b = b[:8<<10]
		}
		return &ServiceError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}

	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
