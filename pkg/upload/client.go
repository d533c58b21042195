// Package upload is a client for the one-shot video blurring endpoint.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"example.com/live_blur/pkg/logger"
)

// DefaultURL is the upload endpoint of a locally running service.
const DefaultURL = "http://localhost:8000/blur_bottles/"

// ErrNoTargets is returned when Blur is called without any name to keep.
var ErrNoTargets = errors.New("select at least one target to keep unblurred")

// APIError is a non-200 response from the service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API error %d", e.Status)
	}
	return fmt.Sprintf("API error %d: %s", e.Status, e.Detail)
}

// Config holds upload client settings
type Config struct {
	URL        string       // defaults to DefaultURL
	HTTPClient *http.Client // defaults to a client without timeout; processing can take minutes
	Logger     *slog.Logger
}

// Client uploads videos for blurring
type Client struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewClient creates a new upload client
func NewClient(config Config) *Client {
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &Client{
		url:    config.URL,
		client: config.HTTPClient,
		log:    logger.OrDefault(config.Logger).With("component", "upload"),
	}
}

// Blur uploads the video at videoPath and writes the processed video to w.
// names are the lowercase target names to leave unblurred.
func (c *Client) Blur(ctx context.Context, videoPath string, names []string, w io.Writer) error {
	if len(names) == 0 {
		return ErrNoTargets
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	endpoint, err := c.endpoint(names)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, filepath.Base(videoPath), names))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		_ = pr.Close()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Info("uploading video", "file", videoPath, "classes_no_blur", names)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Info("processed video received", "bytes", n)
	return nil
}

// endpoint returns the upload URL with the names also passed as query
// parameters, which is where the service's handler reads them from.
func (c *Client) endpoint(names []string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("invalid upload URL: %w", err)
	}
	q := u.Query()
	for _, n := range names {
		q.Add("classes_no_blur", n)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func writeForm(mw *multipart.Writer, video io.Reader, filename string, names []string) error {
	part, err := mw.CreateFormFile("video", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, video); err != nil {
		return fmt.Errorf("failed to copy video: %w", err)
	}
	for _, n := range names {
		if err := mw.WriteField("classes_no_blur", n); err != nil {
			return err
		}
	}
	return mw.Close()
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(payload.Detail)
		}
	} else {
		apiErr.Detail = string(body)
	}
	return apiErr
}
