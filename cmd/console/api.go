package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type turnRequest struct {
	Input   string `json:"input"`
	Genesis bool   `json:"genesis,omitempty"`
}

type turnResponse struct {
	Narrative  string `json:"narrative"`
	TokensUsed int    `json:"tokens_used"`
	Turn       int    `json:"turn"`
	Error      string `json:"error"`
}

type gameResponse struct {
	Restored bool   `json:"restored"`
	Turn     int    `json:"turn"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

func sendTurn(client *http.Client, baseURL, input string) (*turnResponse, error) {
	jsonData, err := json.Marshal(turnRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	resp, err := client.Post(baseURL+"/v1/turn", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed turnResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("turn failed: %s", parsed.Error)
	}
	return &parsed, nil
}

func sendSimple(client *http.Client, baseURL, path string) (*gameResponse, error) {
	resp, err := client.Post(baseURL+path, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed gameResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed: %s", parsed.Error)
	}
	return &parsed, nil
}
