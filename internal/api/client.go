package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/estate360/positioner/pkg/core"
)

// UploadMetadata accompanies an exported placement file.
type UploadMetadata struct {
	PanoramaID string
	Placements int
	Tag        string
}

// Client talks to the listing platform's panorama service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the panorama service is reachable.
func (c *Client) Healthcheck() error {
	resp, err := c.httpClient.Get(c.baseURL + "/healthcheck")
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// FetchPanorama returns the panorama of a neighborhood.
func (c *Client) FetchPanorama(ctx context.Context, neighborhoodID string) (core.PanoramaResource, error) {
	var res core.PanoramaResource
	err := c.getJSON(ctx, "/api/v1/neighborhoods/"+url.PathEscape(neighborhoodID)+"/panorama", &res)
	return res, err
}

// ListProperties returns the already-placed property markers of a panorama.
func (c *Client) ListProperties(ctx context.Context, panoramaID string) ([]core.PropertyMarker, error) {
	var out []core.PropertyMarker
	err := c.getJSON(ctx, "/api/v1/panoramas/"+url.PathEscape(panoramaID)+"/properties", &out)
	return out, err
}

// ProbeImage checks that imageURL answers a HEAD request with an image.
// Relative URLs are resolved against the client's base URL.
func (c *Client) ProbeImage(ctx context.Context, imageURL string) error {
	target := imageURL
	if !strings.Contains(imageURL, "://") {
		target = c.baseURL + "/" + strings.TrimLeft(imageURL, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("image probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image probe returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || !strings.HasPrefix(mt, "image/") {
			return fmt.Errorf("image probe returned content type %q", ct)
		}
	}
	return nil
}

// PutPlacement stores the marker position of a property.
func (c *Client) PutPlacement(ctx context.Context, p core.Placement) error {
	body, err := json.Marshal(struct {
		PanoramaID  string  `json:"panoramaId"`
		MarkerYaw   float64 `json:"markerYaw"`
		MarkerPitch float64 `json:"markerPitch"`
	}{p.PanoramaID, p.Position.Yaw, p.Position.Pitch})
	if err != nil {
		return fmt.Errorf("encoding placement: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut,
		"/api/v1/properties/"+url.PathEscape(p.PropertyID)+"/marker", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("placement request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("placement returned status %d", resp.StatusCode)
	}
	return nil
}

// Upload sends a gzipped JSON placement export to the panorama service.
func (c *Client) Upload(filePath string, meta UploadMetadata) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer writer.Close()

		_ = writer.WriteField("secret", c.apiKey)
		_ = writer.WriteField("filename", filepath.Base(filePath))
		_ = writer.WriteField("panoramaId", meta.PanoramaID)
		_ = writer.WriteField("placements", fmt.Sprintf("%d", meta.Placements))
		_ = writer.WriteField("tag", meta.Tag)

		part, err := writer.CreateFormFile("file", filepath.Base(filePath))
		if err != nil {
			errCh <- fmt.Errorf("failed to create form file: %w", err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			errCh <- fmt.Errorf("failed to copy file: %w", err)
			return
		}
		errCh <- nil
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/placements/import", pr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return writeErr
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	}
	return nil
}
