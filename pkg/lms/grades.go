// Package lms reads learner grades from the learning platform.
package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Grade is a learner's current grade in one course.
type Grade struct {
	Percent      float64 `json:"percent"`
	Passed       bool    `json:"passed"`
	AllAttempted bool    `json:"all_attempted"`
}

// Client calls the LMS grades API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a grades client. A nil httpClient gets one with timeout.
func NewClient(baseURL, token string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

type gradeResponse struct {
	Username     string  `json:"username"`
	CourseID     string  `json:"course_id"`
	Percent      float64 `json:"percent"`
	Passed       bool    `json:"passed"`
	AllAttempted bool    `json:"all_graded_attempted"`
}

// ReadGrade returns the learner's grade for courseKey, or nil when the
// platform has no grade for them yet.
func (c *Client) ReadGrade(ctx context.Context, username, courseKey string) (*Grade, error) {
	endpoint := fmt.Sprintf("%s/api/grades/v1/courses/%s/?username=%s",
		c.baseURL, url.PathEscape(courseKey), url.QueryEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build grade request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read grade %s: %w", courseKey, err)
	}
	defer res.Body.Close() //nolint:errcheck

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, nil
	case res.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("read grade %s: status %d", courseKey, res.StatusCode)
	}

	var payload []gradeResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode grade %s: %w", courseKey, err)
	}
	for _, g := range payload {
		if g.Username == "" || g.Username == username {
			return &Grade{Percent: g.Percent, Passed: g.Passed, AllAttempted: g.AllAttempted}, nil
		}
	}
	return nil, nil
}
