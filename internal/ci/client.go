// Package ci provides a stateless HTTP client for the external CI engine.
//
// The engine exposes a Jenkins-style REST surface: job creation via
// createItem, a per-job JSON status endpoint, a parameterized build
// trigger, and a job delete endpoint. Every call carries a basic-auth
// header built from a static username/token pair; nothing is cached
// between calls.
package ci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// jobConfigXML is the parameterized job definition submitted on create.
// The four parameters mirror what StartJob sends per invocation.
const jobConfigXML = `<?xml version="1.0" encoding="UTF-8"?>
<project>
  <properties>
    <hudson.model.ParametersDefinitionProperty>
      <parameterDefinitions>
        <hudson.model.StringParameterDefinition><name>FILE_NAME</name></hudson.model.StringParameterDefinition>
        <hudson.model.StringParameterDefinition><name>PROJECT_ID</name></hudson.model.StringParameterDefinition>
        <hudson.model.StringParameterDefinition><name>USER_ID</name></hudson.model.StringParameterDefinition>
        <hudson.model.StringParameterDefinition><name>BUILD_ID</name></hudson.model.StringParameterDefinition>
      </parameterDefinitions>
    </hudson.model.ParametersDefinitionProperty>
  </properties>
</project>`

// Config holds configuration for the CI client.
type Config struct {
	// BaseURL is the root URL of the CI engine.
	BaseURL string
	// Username and APIToken form the basic-auth credential attached
	// to every call.
	Username string
	APIToken string
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// PollInterval is the delay between status polls.
	PollInterval time.Duration
	// PollMaxElapsed bounds the total duration of a poll loop.
	PollMaxElapsed time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, username, token string) *Config {
	return &Config{
		BaseURL:        baseURL,
		Username:       username,
		APIToken:       token,
		Timeout:        30 * time.Second,
		PollInterval:   2 * time.Second,
		PollMaxElapsed: 10 * time.Minute,
	}
}

// Client talks to the CI engine. All methods are stateless procedures;
// the client holds only configuration and the HTTP transport.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new CI client.
func NewClient(cfg *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// jobStatus mirrors the fields of the job status endpoint the client
// cares about.
type jobStatus struct {
	InQueue   bool `json:"inQueue"`
	LastBuild *struct {
		InProgress bool   `json:"inProgress"`
		Result     string `json:"result"`
	} `json:"lastBuild"`
}

// settled reports whether the job is neither queued nor in progress.
func (s *jobStatus) settled() bool {
	if s.InQueue {
		return false
	}
	if s.LastBuild != nil && s.LastBuild.InProgress {
		return false
	}
	return true
}

// failed reports whether the job settled in a failure result.
func (s *jobStatus) failed() bool {
	return s.LastBuild != nil && s.LastBuild.Result != "" && s.LastBuild.Result != "SUCCESS"
}

// CreateJob submits a parameterized job definition and polls the job's
// status endpoint until it settles. A failure result surfaces ErrRemote;
// exceeding the poll ceiling surfaces ErrTimeout.
func (c *Client) CreateJob(ctx context.Context, jobName string) error {
	endpoint := fmt.Sprintf("%s/createItem?name=%s", c.config.BaseURL, url.QueryEscape(jobName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(jobConfigXML))
	if err != nil {
		return fmt.Errorf("building create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")
	req.SetBasicAuth(c.config.Username, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("creating job %s: %w", jobName, err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("creating job %s: status %d: %w", jobName, resp.StatusCode, ErrRemote)
	}

	c.logger.Info("ci job created", "job", jobName)

	return c.waitSettled(ctx, jobName)
}

// waitSettled polls the job status until it is neither queued nor in
// progress, bounded by PollMaxElapsed.
func (c *Client) waitSettled(ctx context.Context, jobName string) error {
	deadline := time.Now().Add(c.config.PollMaxElapsed)

	for {
		status, err := c.getJobStatus(ctx, jobName)
		if err != nil {
			return err
		}

		if status.settled() {
			if status.failed() {
				return fmt.Errorf("job %s settled with result %s: %w", jobName, status.LastBuild.Result, ErrRemote)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("job %s still pending after %s: %w", jobName, c.config.PollMaxElapsed, ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.PollInterval):
		}
	}
}

// getJobStatus fetches the job's JSON status endpoint.
func (c *Client) getJobStatus(ctx context.Context, jobName string) (*jobStatus, error) {
	endpoint := fmt.Sprintf("%s/job/%s/api/json", c.config.BaseURL, url.PathEscape(jobName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching status of job %s: %w", jobName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("job %s: %w", jobName, ErrJobNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetching status of job %s: status %d: %w", jobName, resp.StatusCode, ErrRemote)
	}

	status := &jobStatus{}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("decoding status of job %s: %w", jobName, err)
	}

	return status, nil
}

// StartJob triggers the parameterized build carrying the artifact name
// and the request identifiers. A non-success HTTP status is a hard
// error.
func (c *Client) StartJob(ctx context.Context, jobName, fileName, projectID, userID, buildID string) error {
	endpoint := fmt.Sprintf("%s/job/%s/buildWithParameters", c.config.BaseURL, url.PathEscape(jobName))

	params := url.Values{}
	params.Set("FILE_NAME", fileName)
	params.Set("PROJECT_ID", projectID)
	params.Set("USER_ID", userID)
	params.Set("BUILD_ID", buildID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("building trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.config.Username, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("starting job %s: %w", jobName, err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("starting job %s: status %d: %w", jobName, resp.StatusCode, ErrRemote)
	}

	c.logger.Info("ci job started", "job", jobName, "build_id", buildID)
	return nil
}

// DeleteJob removes the job from the CI engine, re-issuing the delete
// while the job still reports existing. A job that is already absent
// counts as success; deletion is idempotent.
func (c *Client) DeleteJob(ctx context.Context, jobName string) error {
	deadline := time.Now().Add(c.config.PollMaxElapsed)

	for {
		exists, err := c.jobExists(ctx, jobName)
		if err != nil {
			return err
		}
		if !exists {
			c.logger.Info("ci job deleted", "job", jobName)
			return nil
		}

		if err := c.issueDelete(ctx, jobName); err != nil {
			return err
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("job %s still present after %s: %w", jobName, c.config.PollMaxElapsed, ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.PollInterval):
		}
	}
}

// jobExists probes the job status endpoint.
func (c *Client) jobExists(ctx context.Context, jobName string) (bool, error) {
	endpoint := fmt.Sprintf("%s/job/%s/api/json", c.config.BaseURL, url.PathEscape(jobName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("building probe request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing job %s: %w", jobName, err)
	}
	drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("probing job %s: status %d: %w", jobName, resp.StatusCode, ErrRemote)
	}
}

func (c *Client) issueDelete(ctx context.Context, jobName string) error {
	endpoint := fmt.Sprintf("%s/job/%s/doDelete", c.config.BaseURL, url.PathEscape(jobName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting job %s: %w", jobName, err)
	}
	drain(resp)

	// 404 on delete means the job disappeared between probe and
	// delete, which is the outcome we want.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("deleting job %s: status %d: %w", jobName, resp.StatusCode, ErrRemote)
	}

	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
