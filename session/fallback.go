package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/scenelingua/engine/recorder"
)

// transcribeFallback performs the one-shot REST upload used when the
// channel is not open: multipart audio file in, {text} out.
func (c *Controller) transcribeFallback(ctx context.Context, clip *recorder.AudioClip) (string, error) {
	if c.opts.TranscribeURL == "" {
		return "", fmt.Errorf("no transcription endpoint configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TranscribeURL, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription endpoint returned %s", resp.Status)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return result.Text, nil
}
