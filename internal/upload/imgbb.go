package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/s/lifelessons/internal/logger"
)

// ImgBB uploads images to an ImgBB compatible hosting endpoint.
type ImgBB struct {
	log      *logger.Logger
	endpoint string
	key      string
	http     *http.Client
}

func NewImgBB(log *logger.Logger, endpoint, key string, transport http.RoundTripper) *ImgBB {
	return &ImgBB{
		log:      log.With("component", "ImgBB"),
		endpoint: endpoint,
		key:      key,
		http:     &http.Client{Timeout: 30 * time.Second, Transport: transport},
	}
}

type imgbbReply struct {
	Success bool `json:"success"`
	Data    struct {
		DisplayURL string `json:"display_url"`
	} `json:"data"`
}

func (u *ImgBB) Upload(ctx context.Context, filename, _ string, r io.Reader, _ int64) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, io.LimitReader(r, MaxImageBytes)); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := u.endpoint + "?key=" + url.QueryEscape(u.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		u.log.Warn("image host unreachable", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	var reply imgbbReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || !reply.Success || reply.Data.DisplayURL == "" {
		u.log.Warn("image host rejected upload", "status", resp.StatusCode, "file", filename)
		return "", ErrUploadFailed
	}
	return reply.Data.DisplayURL, nil
}
