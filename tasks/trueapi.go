package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel results for the auth and download special cases. They are
// statuses, not hard failures, and callers branch on them.
var (
	// ErrTaxIDRequired means sign-in needs an ИНН to disambiguate the
	// organization and none was supplied.
	ErrTaxIDRequired = errors.New("tax identifier required for sign-in")

	// ErrUserNotFound means the certificate holder is not registered in the
	// marking system.
	ErrUserNotFound = errors.New("user not registered in marking system")

	// ErrNoAccess marks a 403 on file download: the token has no access to
	// the product group. The task is skipped, not failed.
	ErrNoAccess = errors.New("no access to product group")

	// ErrEmptyResult marks a 204 on file download: no violations for the
	// group and date. No file is written.
	ErrEmptyResult = errors.New("result file is empty")
)

// Download terminal statuses reported by /dispenser/results.
const (
	DownloadStatusSuccess = "SUCCESS"
	DownloadStatusFailed  = "FAILED"
)

// TrueAPIClient talks to the True API marking-system endpoints.
type TrueAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTrueAPIClient creates a client for the given base URL.
func NewTrueAPIClient(baseURL string) *TrueAPIClient {
	return &TrueAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AuthChallenge is the single-use signing challenge issued by /auth/key.
type AuthChallenge struct {
	UUID string `json:"uuid"`
	Data string `json:"data"`
}

// GetAuthChallenge requests a fresh challenge. Challenges are single-use: a
// new one must be drawn for every sign-in attempt.
func (c *TrueAPIClient) GetAuthChallenge(ctx context.Context) (*AuthChallenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/key", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth key request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("auth key returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var challenge AuthChallenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}

// SignInParams carries the signed challenge exchange payload.
type SignInParams struct {
	UUID       string `json:"uuid"`
	SignedData string `json:"data"`
	INN        string `json:"inn,omitempty"`
	MCHD       bool   `json:"mchd,omitempty"`
}

type signInError struct {
	ErrorMessage string `json:"error_message"`
}

// SignIn exchanges a signed challenge for a bearer token. The
// "authorization performed by organization" and "user not found" error
// bodies map to ErrTaxIDRequired and ErrUserNotFound respectively.
func (c *TrueAPIClient) SignIn(ctx context.Context, params SignInParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal sign-in payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/simpleSignIn", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign-in request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
		var apiErr signInError
		_ = json.Unmarshal(respBody, &apiErr)
		switch {
		case strings.Contains(apiErr.ErrorMessage, "организацией выполняется авторизация") && params.INN == "":
			return "", ErrTaxIDRequired
		case strings.Contains(apiErr.ErrorMessage, "Пользователь не найден"):
			return "", ErrUserNotFound
		default:
			return "", fmt.Errorf("sign-in rejected with status %d: %s", resp.StatusCode, apiErr.ErrorMessage)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sign-in returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decode sign-in response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("sign-in response contains no token")
	}
	return result.Token, nil
}

// CreateViolationsTask submits an export task for one product group over
// the [startDate, endDate] range and returns the remote task id.
func (c *TrueAPIClient) CreateViolationsTask(ctx context.Context, token string, groupCode int, startDate, endDate string) (string, error) {
	payload := map[string]any{
		"startDate":               startDate,
		"endDate":                 endDate,
		"productGroupCode":        groupCode,
		"violationCategoryFilter": []string{},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispenser/tasks", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create task request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create task returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode task response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("task response contains no id")
	}
	return result.ID, nil
}

// TaskInfo is the covered-range detail reported by /dispenser/tasks/{id}.
type TaskInfo struct {
	DataStartDate string `json:"dataStartDate"`
	DataEndDate   string `json:"dataEndDate"`
}

// GetTaskInfo fetches an export task's covered date range.
func (c *TrueAPIClient) GetTaskInfo(ctx context.Context, token string, groupCode int, taskID string) (*TaskInfo, error) {
	u := fmt.Sprintf("%s/dispenser/tasks/%s?pg=%d", c.baseURL, url.PathEscape(taskID), groupCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("task info returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Task TaskInfo `json:"task"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode task info: %w", err)
	}
	return &result.Task, nil
}

// TaskResult is one entry of the /dispenser/results listing.
type TaskResult struct {
	ID             string `json:"id"`
	DownloadStatus string `json:"downloadStatus"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

// GetResults queries the export-result status for the given task ids.
func (c *TrueAPIClient) GetResults(ctx context.Context, token string, groupCode int, taskIDs []string) ([]TaskResult, error) {
	q := url.Values{}
	q.Set("page", "0")
	q.Set("size", "10")
	q.Set("pg", fmt.Sprint(groupCode))
	for _, id := range taskIDs {
		q.Add("task_ids[]", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/dispenser/results?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("results request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("results returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		List []TaskResult `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return result.List, nil
}

// DownloadResultFile fetches the binary result file for a finished export.
// A 403 yields ErrNoAccess and a 204 yields ErrEmptyResult; both are
// handled as skips by the poller.
func (c *TrueAPIClient) DownloadResultFile(ctx context.Context, token string, groupCode int, resultID string) ([]byte, error) {
	u := fmt.Sprintf("%s/dispenser/results/%s/file?pg=%d", c.baseURL, url.PathEscape(resultID), groupCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusForbidden:
		return nil, ErrNoAccess
	case http.StatusNoContent:
		return nil, ErrEmptyResult
	case http.StatusOK:
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("download returned status %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyResult
	}
	return data, nil
}

func (c *TrueAPIClient) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", "application/json")
}
