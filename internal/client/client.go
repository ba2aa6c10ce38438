package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Client talks to the drive HTTP API on behalf of one user.
type Client struct {
	BaseURL string
	UserID  string
	http    *http.Client
}

// New creates an API client. userID may be empty for anonymous use.
func New(baseURL, userID string) *Client {
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// User mirrors the registration response.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// FileInfo mirrors the upload result and file listing entries.
type FileInfo struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"upload_date"`
	IsDeduplicated bool      `json:"is_deduplicated"`
	IsPublic       bool      `json:"is_public"`
	DownloadCount  int       `json:"download_count"`
}

// Stats mirrors the per-user stats response.
type Stats struct {
	ActualUsedBytes   int64   `json:"actual_used_bytes"`
	OriginalSizeBytes int64   `json:"original_size_bytes"`
	SavingsBytes      int64   `json:"savings_bytes"`
	SavingsPercentage float64 `json:"savings_percentage"`
}

// Register creates an account and returns the new user.
func (c *Client) Register(email, password string) (*User, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := c.http.Post(c.BaseURL+"/api/users", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var user User
	if err := decode(resp, http.StatusCreated, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Upload sends a local file as a multipart form.
func (c *Client) Upload(path string) (*FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	resp, err := c.http.Post(
		fmt.Sprintf("%s/api/upload/%s", c.BaseURL, url.PathEscape(c.UserID)),
		w.FormDataContentType(),
		&buf,
	)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var info FileInfo
	if err := decode(resp, http.StatusCreated, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Download fetches a file into the current directory under the server's
// filename and returns the path written along with the byte count.
func (c *Client) Download(fileID string) (string, int64, error) {
	u := fmt.Sprintf("%s/d/%s", c.BaseURL, url.PathEscape(fileID))
	if c.UserID != "" {
		u += "?user_id=" + url.QueryEscape(c.UserID)
	}

	resp, err := c.http.Get(u)
	if err != nil {
		return "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, apiError(resp)
	}

	outPath := attachmentFilename(resp, fileID)
	out, err := os.Create(outPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", outPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		os.Remove(outPath)
		return "", 0, fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return outPath, n, nil
}

// attachmentFilename extracts the filename from Content-Disposition,
// falling back to the file ID. Directory components are stripped.
func attachmentFilename(resp *http.Response, fallback string) string {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition"))
	if err == nil {
		if name := filepath.Base(params["filename"]); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return fallback
}

// Delete removes one of the user's files.
func (c *Client) Delete(fileID string) error {
	u := fmt.Sprintf("%s/api/files/%s?user_id=%s",
		c.BaseURL, url.PathEscape(fileID), url.QueryEscape(c.UserID))
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// Share flips a file's public flag.
func (c *Client) Share(fileID string, public bool) error {
	body, _ := json.Marshal(map[string]bool{"is_public": public})
	u := fmt.Sprintf("%s/api/files/%s/visibility?user_id=%s",
		c.BaseURL, url.PathEscape(fileID), url.QueryEscape(c.UserID))
	req, err := http.NewRequest(http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// List returns the user's files.
func (c *Client) List() ([]FileInfo, error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/api/files/%s", c.BaseURL, url.PathEscape(c.UserID)))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var files []FileInfo
	if err := decode(resp, http.StatusOK, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Stats returns the user's storage stats.
func (c *Client) Stats() (*Stats, error) {
	resp, err := c.http.Get(fmt.Sprintf("%s/api/stats/%s", c.BaseURL, url.PathEscape(c.UserID)))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var stats Stats
	if err := decode(resp, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func decode(resp *http.Response, wantStatus int, out any) error {
	if resp.StatusCode != wantStatus {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d", resp.StatusCode)
}
