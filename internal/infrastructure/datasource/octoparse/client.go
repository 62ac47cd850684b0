package octoparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"
)

const (
	DefaultBaseURL           = "https://openapi.octoparse.com"
	DefaultDataURL           = "https://dataapi.octoparse.com"
	DefaultRequestsPerSecond = 5

	sourceName    = "octoparse"
	refreshMargin = 60 * time.Second
)

type Config struct {
	Username          string
	Password          string
	BaseURL           string
	DataURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client talks to the Octoparse management and data APIs.
type Client struct {
	username string
	password string
	baseURL  string
	dataURL  string

	client  *http.Client
	limiter *rate.Limiter
	cache   TokenCache
	logger  *slog.Logger
	now     func() time.Time

	authMu sync.Mutex
}

var _ repository.DataSource = (*Client)(nil)

func NewClient(cfg Config, cache TokenCache, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	dataURL := strings.TrimRight(cfg.DataURL, "/")
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cache == nil {
		cache = NewMemoryTokenCache()
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		username: cfg.Username,
		password: cfg.Password,
		baseURL:  baseURL,
		dataURL:  dataURL,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Client) Name() string { return sourceName }

// FallbackTasks is empty: the live source only tracks what discovery finds.
func (c *Client) FallbackTasks() []entity.UpstreamTask { return nil }

// wire shapes

type envelope[T any] struct {
	Data      T      `json:"data"`
	RequestID string `json:"requestId"`
}

type tokenPayload struct {
	AccessToken  string    `json:"access_token"`
	ExpiresIn    expiresIn `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
}

// expiresIn accepts both 3600 and "3600".
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expires_in %q: %w", s, err)
	}
	*e = expiresIn(n)
	return nil
}

type groupsPayload struct {
	Total      int `json:"total"`
	TaskGroups []struct {
		TaskGroupID   string `json:"taskGroupId"`
		TaskGroupName string `json:"taskGroupName"`
		CreateTime    string `json:"createTime"`
	} `json:"taskGroups"`
}

type tasksPayload struct {
	Total int `json:"total"`
	Tasks []struct {
		TaskID      string `json:"taskId"`
		TaskName    string `json:"taskName"`
		Status      int    `json:"status"`
		CreateTime  string `json:"createTime"`
		LastRunTime string `json:"lastRunTime"`
	} `json:"tasks"`
}

type dataPayload struct {
	Total int64              `json:"total"`
	Rows  []entity.RawRecord `json:"rows"`
}

func (c *Client) FetchTaskGroups(ctx context.Context) (entity.TaskGroupList, error) {
	var out envelope[groupsPayload]
	if err := c.getJSON(ctx, "task_groups", c.baseURL+"/taskGroup", &out); err != nil {
		return entity.TaskGroupList{}, err
	}

	list := entity.TaskGroupList{Total: out.Data.Total, Groups: make([]entity.TaskGroup, 0, len(out.Data.TaskGroups))}
	for _, g := range out.Data.TaskGroups {
		list.Groups = append(list.Groups, entity.TaskGroup{
			ID:        g.TaskGroupID,
			Name:      g.TaskGroupName,
			CreatedAt: parseTime(g.CreateTime),
		})
	}
	return list, nil
}

func (c *Client) FetchTasksByGroup(ctx context.Context, groupID string) (entity.TaskList, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return entity.TaskList{}, entity.InvalidArgumentf("invalid taskGroupId provided")
	}

	q := url.Values{"taskGroupId": {groupID}}
	var out envelope[tasksPayload]
	if err := c.getJSON(ctx, "tasks_by_group", c.baseURL+"/task/search?"+q.Encode(), &out); err != nil {
		return entity.TaskList{}, err
	}

	list := entity.TaskList{Total: out.Data.Total, Tasks: make([]entity.UpstreamTask, 0, len(out.Data.Tasks))}
	for _, t := range out.Data.Tasks {
		list.Tasks = append(list.Tasks, entity.UpstreamTask{
			ID:        t.TaskID,
			Name:      t.TaskName,
			Status:    t.Status,
			CreatedAt: parseTime(t.CreateTime),
			LastRunAt: parseTime(t.LastRunTime),
		})
	}
	return list, nil
}

func (c *Client) FetchTaskData(ctx context.Context, taskID string, offset int64, size int) (entity.TaskData, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return entity.TaskData{}, entity.InvalidArgumentf("invalid taskId provided")
	}
	offset, size = entity.ClampPage(offset, size)

	q := url.Values{
		"taskId": {taskID},
		"offset": {strconv.FormatInt(offset, 10)},
		"size":   {strconv.Itoa(size)},
	}
	var out envelope[dataPayload]
	if err := c.getJSON(ctx, "task_data", c.dataURL+"/api/alldata/GetDataOfTaskByOffset?"+q.Encode(), &out); err != nil {
		return entity.TaskData{}, err
	}

	rows := out.Data.Rows
	if rows == nil {
		rows = []entity.RawRecord{}
	}
	return entity.TaskData{Total: out.Data.Total, Rows: rows}, nil
}

// token returns a usable access token, authenticating when the cached one
// is missing or within refreshMargin of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	if tok, ok := c.cachedToken(ctx); ok {
		return tok, nil
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()

	// another caller may have refreshed while we waited
	if tok, ok := c.cachedToken(ctx); ok {
		return tok, nil
	}
	return c.authenticate(ctx)
}

func (c *Client) cachedToken(ctx context.Context) (string, bool) {
	tok, ok, err := c.cache.Get(ctx)
	if err != nil {
		c.logger.Warn("token cache read failed", "err", err)
		return "", false
	}
	if !ok || !tok.usableAt(c.now()) {
		return "", false
	}
	return tok.AccessToken, true
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.logger.Info("authenticating with Octoparse")

	body, err := json.Marshal(map[string]string{
		"username":   c.username,
		"password":   c.password,
		"grant_type": "password",
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal token request")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "rate limit wait"), entity.ErrUpstreamFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/json")

	requestedAt := c.now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.IncUpstreamRequest(sourceName, "token", "error")
		return "", errors.Mark(errors.Wrap(err, "token request"), entity.ErrUpstreamAuth)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		metrics.IncUpstreamRequest(sourceName, "token", "error")
		return "", errors.Mark(
			errors.Newf("octoparse token error: %d - %s", resp.StatusCode, snippet(resp.Body)),
			entity.ErrUpstreamAuth,
		)
	}

	var out envelope[tokenPayload]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.IncUpstreamRequest(sourceName, "token", "error")
		return "", errors.Mark(errors.Wrap(err, "decode token response"), entity.ErrUpstreamAuth)
	}
	if out.Data.AccessToken == "" {
		metrics.IncUpstreamRequest(sourceName, "token", "error")
		return "", errors.Mark(errors.New("invalid token response from Octoparse"), entity.ErrUpstreamAuth)
	}
	if out.Data.ExpiresIn <= 0 {
		metrics.IncUpstreamRequest(sourceName, "token", "error")
		return "", errors.Mark(errors.New("invalid expires_in value in token response"), entity.ErrUpstreamAuth)
	}
	metrics.IncUpstreamRequest(sourceName, "token", "ok")

	tok := Token{
		AccessToken: out.Data.AccessToken,
		ExpiresAt:   requestedAt.Add(time.Duration(out.Data.ExpiresIn) * time.Second),
	}
	if err := c.cache.Set(ctx, tok); err != nil {
		c.logger.Warn("token cache write failed", "err", err)
	}

	c.logger.Info("Octoparse token acquired", "expires_at", tok.ExpiresAt)
	return tok.AccessToken, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		metrics.IncError("octoparse", "auth")
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Mark(errors.Wrap(err, "rate limit wait"), entity.ErrUpstreamFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		metrics.IncError("octoparse", "create_request")
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.IncUpstreamRequest(sourceName, endpoint, "error")
		metrics.IncError("octoparse", "http_do")
		return errors.Mark(errors.Wrapf(err, "octoparse %s", endpoint), entity.ErrUpstreamFetch)
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.IncUpstreamRequest(sourceName, endpoint, "unauthorized")
		if err := c.cache.Invalidate(ctx); err != nil {
			c.logger.Warn("token cache invalidate failed", "err", err)
		}
		return errors.Mark(
			errors.Newf("octoparse %s: unauthorized - %s", endpoint, snippet(resp.Body)),
			entity.ErrUpstreamAuth,
		)
	case resp.StatusCode != http.StatusOK:
		metrics.IncUpstreamRequest(sourceName, endpoint, "error")
		metrics.IncError("octoparse", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return errors.Mark(
			errors.Newf("octoparse %s error: %d - %s", endpoint, resp.StatusCode, snippet(resp.Body)),
			entity.ErrUpstreamFetch,
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.IncUpstreamRequest(sourceName, endpoint, "error")
		metrics.IncError("octoparse", "decode_response")
		return errors.Mark(errors.Wrapf(err, "decode %s response", endpoint), entity.ErrUpstreamFetch)
	}
	metrics.IncUpstreamRequest(sourceName, endpoint, "ok")
	return nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Printf("close body err: %s", err)
	}
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// parseTime is lenient: Octoparse timestamps come in several layouts.
func parseTime(s string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
