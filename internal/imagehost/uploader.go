// Package imagehost re-hosts inline base64 image payloads on an external
// file host and substitutes the hosted URLs back into generation results.
package imagehost

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"imagegen-mcp-server/internal/config"
)

// ErrInvalidBase64 marks inline image data that could not be decoded.
// Unlike transport errors it always propagates: silently shipping
// corrupt data would be worse than failing the request.
var ErrInvalidBase64 = errors.New("invalid base64 image data")

// Failure records a non-2xx upload reply. It is a data value, not an
// error: the processor decides what a failed upload means for the batch.
type Failure struct {
	StatusCode int
	Body       string
}

// Uploader posts images to the endpoint named by IMAGE_UPLOAD_URL.
// Exactly one POST per image, no retries.
type Uploader struct {
	src    config.Source
	client *http.Client
	logger *slog.Logger
}

// NewUploader creates an Uploader reading its endpoint, expiration and
// user-agent live from src on every call.
func NewUploader(src config.Source) *Uploader {
	return &Uploader{
		src:    src,
		client: &http.Client{},
		logger: slog.Default(),
	}
}

// mimeExtensions maps image MIME types to upload filename extensions.
// Unknown types fall back to png.
var mimeExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ExtensionForMIME returns the filename extension for a MIME type.
func ExtensionForMIME(mimeType string) string {
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return "png"
}

// Upload decodes a base64 payload and posts it to the configured host.
// A 2xx reply yields the trimmed body as the hosted URL. A non-2xx reply
// yields a Failure value. Returned errors are transport-level problems
// (bad base64, unreachable host); the caller picks fail-open or
// fail-closed for those.
func (u *Uploader) Upload(b64Data, mimeType string) (string, *Failure, error) {
	data, err := base64.StdEncoding.DecodeString(CleanBase64Data(b64Data))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	ext := ExtensionForMIME(mimeType)
	body, contentType, err := buildForm(data, ext, config.UploadExpires(u.src))
	if err != nil {
		return "", nil, err
	}

	uploadURL := config.UploadURL(u.src)
	req, err := http.NewRequest(http.MethodPost, uploadURL, body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", config.UploadUserAgent(u.src))

	u.logger.Debug("Uploading image", "url", uploadURL, "ext", ext, "size_bytes", len(data))
	resp, err := u.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.logger.Warn("Upload rejected", "status", resp.StatusCode)
		return "", &Failure{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}, nil
	}

	return strings.TrimSpace(string(respBody)), nil, nil
}

// buildForm assembles the three-part multipart/form-data body the host
// expects: the file itself, an empty secret field (which makes the host
// mint longer, unguessable URLs), and the expiration in hours. The
// boundary is freshly randomized on every call and closed with the
// --boundary-- terminator.
func buildForm(data []byte, ext string, expiresHours int) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image."+ext)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file field: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write file field: %w", err)
	}
	if err := writer.WriteField("secret", ""); err != nil {
		return nil, "", fmt.Errorf("failed to write secret field: %w", err)
	}
	if err := writer.WriteField("expires", strconv.Itoa(expiresHours)); err != nil {
		return nil, "", fmt.Errorf("failed to write expires field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// CleanBase64Data removes a potential data URI prefix and trims
// whitespace, returning the bare base64 string.
func CleanBase64Data(data string) string {
	data = strings.TrimSpace(data)
	if commaIndex := strings.Index(data, ","); commaIndex != -1 && strings.HasPrefix(data, "data:") {
		data = data[commaIndex+1:]
	}
	return strings.TrimSpace(data)
}
