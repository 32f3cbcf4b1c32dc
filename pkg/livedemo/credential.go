package livedemo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	connectionDetailsPath = "/api/connection-details"
	maxBodyBytes          = 1 << 20

	msgUnreachable = "Could not connect to server"
)

// Credential is the one-shot join grant returned by the connection-details endpoint.
type Credential struct {
	ServerURL       string `json:"serverUrl"`
	Token           string `json:"token"`
	ParticipantName string `json:"participantName"`
	RoomName        string `json:"roomName"`
}

// Fetcher obtains a fresh Credential.
type Fetcher interface {
	Fetch(ctx context.Context) (Credential, error)
}

// FetchError is a failed credential fetch. Message is safe to show to the user.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher GETs credentials from the site backend.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for baseURL (e.g. "http://localhost:8080").
// A nil client uses http.DefaultClient.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type credentialBody struct {
	Credential
	Error string `json:"error"`
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+connectionDetailsPath, nil)
	if err != nil {
		return Credential{}, &FetchError{Message: msgUnreachable, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Credential{}, &FetchError{Message: msgUnreachable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Credential{}, &FetchError{Status: resp.StatusCode, Message: msgUnreachable, Err: err}
	}

	var body credentialBody
	parseErr := json.Unmarshal(raw, &body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parseErr == nil && body.Error != "" {
			return Credential{}, &FetchError{Status: resp.StatusCode, Message: body.Error}
		}
		return Credential{}, &FetchError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("Connection failed (%d). Check server logs.", resp.StatusCode),
		}
	}
	if parseErr != nil {
		return Credential{}, &FetchError{Status: resp.StatusCode, Message: msgUnreachable, Err: parseErr}
	}
	if body.Error != "" {
		return Credential{}, &FetchError{Status: resp.StatusCode, Message: body.Error}
	}
	if body.ServerURL == "" || body.Token == "" {
		return Credential{}, &FetchError{Status: resp.StatusCode, Message: "Incomplete connection details"}
	}
	return body.Credential, nil
}
