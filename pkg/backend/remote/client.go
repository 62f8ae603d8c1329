package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PlatformConfig holds connection settings for the deployment platform.
type PlatformConfig struct {
	BaseURL       string        `json:"base_url" mapstructure:"base_url"`
	SessionToken  string        `json:"session_token" mapstructure:"session_token"`
	EnvironmentID string        `json:"environment_id" mapstructure:"environment_id"`
	ProjectID     string        `json:"project_id" mapstructure:"project_id"`
	PollInterval  time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	PollAttempts  int           `json:"poll_attempts" mapstructure:"poll_attempts"`
	StartupGrace  time.Duration `json:"startup_grace" mapstructure:"startup_grace"`
}

// DefaultPlatformConfig returns the observed platform polling bounds.
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		PollInterval: 2 * time.Second,
		PollAttempts: 60,
		StartupGrace: 5 * time.Second,
	}
}

// Application is the platform's application record.
type Application struct {
	ApplicationID string `json:"applicationId"`
	Name          string `json:"name"`
	AppName       string `json:"appName"`
}

// Deployment is one entry of the deployment status listing.
type Deployment struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// PlatformClient talks to the deployment platform's HTTP and websocket APIs.
type PlatformClient struct {
	cfg    PlatformConfig
	http   *http.Client
	logger zerolog.Logger
}

// NewPlatformClient creates a platform client.
func NewPlatformClient(cfg PlatformConfig, logger zerolog.Logger) (*PlatformClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	if cfg.EnvironmentID == "" {
		return nil, fmt.Errorf("platform environment id is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 60
	}

	return &PlatformClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("component", "platform").Logger(),
	}, nil
}

func (c *PlatformClient) authCookie() string {
	return fmt.Sprintf("better-auth.session_token=%s", c.cfg.SessionToken)
}

func (c *PlatformClient) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", c.authCookie())

	c.logger.Debug().Str("path", path).Msg("Platform POST")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("platform response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &platformError{Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("platform response %s: %w", path, err)
		}
	}
	return nil
}

func (c *PlatformClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cookie", c.authCookie())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("platform request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("platform response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &platformError{Path: path, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("platform response %s: %w", path, err)
		}
	}
	return nil
}

// CreateApplication registers a new application in the configured
// environment.
func (c *PlatformClient) CreateApplication(ctx context.Context, name string) (*Application, error) {
	var app Application
	err := c.postJSON(ctx, "/api/application.create", map[string]interface{}{
		"name":          name,
		"environmentId": c.cfg.EnvironmentID,
	}, &app)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("application_id", app.ApplicationID).Str("app_name", app.AppName).Msg("Application created")
	return &app, nil
}

// FindApplication looks an existing application up by its display name.
func (c *PlatformClient) FindApplication(ctx context.Context, name string) (*Application, error) {
	var apps []Application
	if err := c.getJSON(ctx, "/api/application.all", &apps); err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].Name == name {
			return &apps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, name)
}

// SaveBuildType configures the application to build from the bundled deploy
// manifest. Set once, on first creation.
func (c *PlatformClient) SaveBuildType(ctx context.Context, applicationID string) error {
	return c.postJSON(ctx, "/api/application.saveBuildType", map[string]interface{}{
		"applicationId":     applicationID,
		"buildType":         "dockerfile",
		"publishDirectory":  nil,
		"dockerfile":        "Dockerfile",
		"dockerContextPath": "",
		"dockerBuildStage":  "",
		"herokuVersion":     nil,
		"isStaticSpa":       nil,
		"railpackVersion":   nil,
	}, nil)
}

// UploadBundle pushes the zip bundle as a drop deployment.
func (c *PlatformClient) UploadBundle(ctx context.Context, applicationID string, bundle []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("applicationId", applicationID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("zip", "app.zip")
	if err != nil {
		return err
	}
	if _, err := part.Write(bundle); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/trpc/application.dropDeployment", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Cookie", c.authCookie())

	c.logger.Debug().Str("application_id", applicationID).Int("bundle_bytes", len(bundle)).Msg("Uploading bundle")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bundle upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return &platformError{Path: "/api/trpc/application.dropDeployment", StatusCode: resp.StatusCode, Body: string(data)}
	}
	return nil
}

// Deploy triggers a deployment of the uploaded bundle.
func (c *PlatformClient) Deploy(ctx context.Context, applicationID string) error {
	return c.postJSON(ctx, "/api/application.deploy", map[string]interface{}{
		"applicationId": applicationID,
	}, nil)
}

// AwaitDeployment polls deployment status at the fixed interval until the
// latest deployment reports done, reports an explicit error, or the bounded
// attempt budget runs out.
func (c *PlatformClient) AwaitDeployment(ctx context.Context, applicationID string) error {
	path := "/api/deployment.all?applicationId=" + url.QueryEscape(applicationID)

	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		var deployments []Deployment
		if err := c.getJSON(ctx, path, &deployments); err != nil {
			// Transport errors are retried at this poll layer up to the
			// attempt bound.
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Deployment status poll failed")
		} else if len(deployments) > 0 {
			status := deployments[0].Status
			if attempt%5 == 0 {
				c.logger.Info().Str("status", status).Int("attempt", attempt+1).Msg("Deployment status")
			}
			switch status {
			case "done":
				return nil
			case "error":
				return fmt.Errorf("%w: %s", ErrDeploymentFailed, deployments[0].ErrorMessage)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}

	return ErrDeploymentTimeout
}

// ContainerID resolves the running container for a deployment, keyed by the
// platform's internal application name. The lookup rides the platform's
// batched tRPC endpoint; the container listing is the fourth entry of the
// batch.
func (c *PlatformClient) ContainerID(ctx context.Context, applicationID, internalName string) (string, error) {
	input := map[string]interface{}{
		"0": map[string]interface{}{"json": nil, "meta": map[string]interface{}{"values": []string{"undefined"}}},
		"1": map[string]interface{}{"json": nil, "meta": map[string]interface{}{"values": []string{"undefined"}}},
		"2": map[string]interface{}{"json": map[string]interface{}{"applicationId": applicationID}},
		"3": map[string]interface{}{"json": map[string]interface{}{"appName": internalName, "serverId": ""}},
		"4": map[string]interface{}{"json": map[string]interface{}{"projectId": c.cfg.ProjectID}},
		"5": map[string]interface{}{"json": map[string]interface{}{"containerId": "select-a-container", "serverId": ""}},
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	path := "/api/trpc/organization.all,user.getInvitations,application.one,docker.getContainersByAppNameMatch,environment.byProjectId,docker.getConfig?batch=1&input=" + url.QueryEscape(string(encoded))

	var results []struct {
		Result struct {
			Data struct {
				JSON json.RawMessage `json:"json"`
			} `json:"data"`
		} `json:"result"`
	}
	if err := c.getJSON(ctx, path, &results); err != nil {
		return "", err
	}
	if len(results) < 4 {
		return "", fmt.Errorf("%w: %s", ErrContainerNotFound, internalName)
	}

	var containers []struct {
		ContainerID string `json:"containerId"`
	}
	if err := json.Unmarshal(results[3].Result.Data.JSON, &containers); err != nil {
		return "", fmt.Errorf("container lookup for %s: %w", internalName, err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("%w: %s", ErrContainerNotFound, internalName)
	}

	c.logger.Debug().Str("container_id", containers[0].ContainerID).Msg("Resolved container")
	return containers[0].ContainerID, nil
}

// StreamLogs opens the push log stream for a container and accumulates
// messages until both result markers have been observed or the socket
// closes. An empty stream is logged as a warning but never hangs: the
// surrounding deploy poll already bounds the call.
func (c *PlatformClient) StreamLogs(ctx context.Context, containerID string) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := url.URL{
		Scheme:   scheme,
		Host:     base.Host,
		Path:     "/docker-container-logs",
		RawQuery: "containerId=" + url.QueryEscape(containerID) + "&tail=10000&since=all&search=&runType=native",
	}

	header := http.Header{}
	header.Set("Cookie", c.authCookie())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		return "", fmt.Errorf("log stream dial failed: %w", err)
	}
	defer conn.Close()

	c.logger.Debug().Str("container_id", containerID).Msg("Log stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var logs strings.Builder
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			// Normal closure once the container finished writing.
			break
		}
		logs.Write(message)
		if strings.Contains(logs.String(), StartMarker) && strings.Contains(logs.String(), EndMarker) {
			break
		}
	}

	if logs.Len() == 0 {
		c.logger.Warn().Str("container_id", containerID).Msg("No logs received from stream")
	}
	return logs.String(), nil
}
