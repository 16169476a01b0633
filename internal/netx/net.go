// Package netx uploads video binaries to the external video host.
package netx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

var ErrVideoUpload = errors.New("video upload failed")

// VideoUploadError is returned when the video host rejects or cannot receive
// a binary. It matches ErrVideoUpload with errors.Is.
type VideoUploadError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *VideoUploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("upload to %s failed: %s; body: %s", e.URL, e.Status, e.Body)
}

func (e *VideoUploadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrVideoUpload, e.Err}
	}
	return []error{ErrVideoUpload}
}

// VideoHost posts video binaries to upload URLs handed out by video upload
// tickets. Requests are not OAuth-signed.
type VideoHost struct {
	client *http.Client
}

func NewVideoHost(client *http.Client) *VideoHost {
	if client == nil {
		client = &http.Client{}
	}
	return &VideoHost{client: client}
}

// Upload posts content as multipart/form-data with an "auth" field holding
// the ticket token and a "videofile" file part. Any non-2xx status is an
// error.
func (h *VideoHost) Upload(ctx context.Context, uploadURL, auth, fileName string, content []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("auth", auth); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("videofile", fileName)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return &VideoUploadError{URL: uploadURL, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return &VideoUploadError{URL: uploadURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &VideoUploadError{
			URL:        uploadURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
