// Package faceclient talks to the external face-recognition service. The
// matching logic lives there; this client only submits images and reads back
// the classification.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoMatch is returned when the recognizer finds no enrolled student.
var ErrNoMatch = errors.New("no matching student found")

// Match is the recognizer's classification of one scan.
type Match struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Client calls the face recognition service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits every call with mock results,
// for local development without the recognizer running.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Classify submits a face image (base64 data URL) scoped to one class and
// returns the matched student. Confidence thresholding is the recognizer's
// job; a below-threshold result comes back as ErrNoMatch.
func (c *Client) Classify(ctx context.Context, imageDataURL, classID string) (*Match, error) {
	if c.Skip {
		return &Match{StudentID: "mock-student", Name: "Mock Student", Confidence: 0.92}, nil
	}
	if imageDataURL == "" {
		return nil, fmt.Errorf("face image required")
	}

	body, _ := json.Marshal(map[string]string{
		"face_image": imageDataURL,
		"class_id":   classID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Recognized bool    `json:"recognized"`
		StudentID  string  `json:"student_id"`
		Name       string  `json:"student_name"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Recognized || out.StudentID == "" {
		return nil, ErrNoMatch
	}
	return &Match{StudentID: out.StudentID, Name: out.Name, Confidence: out.Confidence}, nil
}

// Enroll registers face images for a student with the recognizer.
func (c *Client) Enroll(ctx context.Context, studentID string, imageDataURLs []string) error {
	if c.Skip {
		return nil
	}
	if len(imageDataURLs) == 0 {
		return fmt.Errorf("at least one face image required")
	}

	body, _ := json.Marshal(map[string]any{
		"user_id":     studentID,
		"face_images": imageDataURLs,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/enroll", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
