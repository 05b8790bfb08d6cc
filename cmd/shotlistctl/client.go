package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

type apiClient struct {
	addr   string
	userID string
}

func (c *apiClient) get(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodGet, path)
}

func (c *apiClient) post(ctx context.Context, path string) (string, error) {
	return c.do(ctx, http.MethodPost, path)
}

func (c *apiClient) do(ctx context.Context, method, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, nil)
	if err != nil {
		return "", err
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 {
		if msg := gjson.GetBytes(body, "error"); msg.Exists() {
			return "", fmt.Errorf("daemon: %s (%s)", msg.String(), resp.Status)
		}
		return "", fmt.Errorf("daemon: %s", resp.Status)
	}
	return string(body), nil
}
