package emulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/padraicbc/tracker/models"
)

// Client talks to the tracker HTTP API as a reader device would.
type Client struct {
	http     *http.Client
	base     string
	username string
	password string
}

// NewClient creates a Client for the tracker at baseURL.
func NewClient(baseURL, username, password string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid tracker url %q", baseURL)
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		base:     strings.TrimRight(u.String(), "/"),
		username: username,
		password: password,
	}, nil
}

// Athletes fetches every athlete.
func (c *Client) Athletes(ctx context.Context) ([]models.AthleteView, error) {
	var out []models.AthleteView
	return out, c.getJSON(ctx, "/athletes", &out)
}

// Readers fetches every reader.
func (c *Client) Readers(ctx context.Context) ([]models.ReaderView, error) {
	var out []models.ReaderView
	return out, c.getJSON(ctx, "/readers", &out)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", path, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

type captureRequest struct {
	AthleteID int64  `json:"athlete_id"`
	ReaderID  int64  `json:"reader_id"`
	Timestamp string `json:"timestamp"`
}

// Submit posts one capture and returns the response status.
func (c *Client) Submit(ctx context.Context, athleteID, readerID int64, ts time.Time) (int, error) {
	body, err := json.Marshal(captureRequest{
		AthleteID: athleteID,
		ReaderID:  readerID,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/captures", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	return res.StatusCode, nil
}
