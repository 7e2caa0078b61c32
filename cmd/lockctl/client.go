package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiBasePath = "/api/gating/v1"

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Code    string
	Message string
	Body    []byte
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, string(e.Body))
}

type gatingClient struct {
	baseURL   string
	community string
	user      string
	groups    string
	token     string
	http      *http.Client
}

func newClient() *gatingClient {
	return &gatingClient{
		baseURL:   serverURL,
		community: communityID,
		user:      userName,
		groups:    userGroups,
		token:     bearerToken,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// do sends a request with an optional JSON body and decodes a 2xx JSON
// answer into v when v is non-nil.
func (c *gatingClient) do(method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.community != "" {
		req.Header.Set("X-Community-ID", c.community)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		if c.user != "" {
			req.Header.Set("X-Remote-User", c.user)
		}
		if c.groups != "" {
			req.Header.Set("X-Remote-Group", c.groups)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := &apiError{Status: resp.StatusCode, Body: raw}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Code, apiErr.Message = payload.Error, payload.Message
		}
		return apiErr
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *gatingClient) get(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}
