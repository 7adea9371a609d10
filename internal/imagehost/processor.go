package imagehost

import (
	"errors"
	"fmt"
	"log/slog"

	"imagegen-mcp-server/internal/config"
)

// ErrNoImages signals a generation result whose images list is present
// but empty. Surfaced to the caller as a tool-level error.
var ErrNoImages = errors.New("no images were produced; check that the selected model supports image output")

// UploadError is the batch-level failure produced when any image in a
// result fails to upload. It carries the first failure in original order.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload failed with status %d: %s", e.StatusCode, e.Body)
}

// imageUploader lets tests substitute the HTTP uploader.
type imageUploader interface {
	Upload(b64Data, mimeType string) (string, *Failure, error)
}

// Processor walks a generation result and replaces inline base64 images
// with hosted URLs.
type Processor struct {
	src      config.Source
	uploader imageUploader
	logger   *slog.Logger
}

// NewProcessor creates a Processor backed by the real Uploader.
func NewProcessor(src config.Source) *Processor {
	return &Processor{
		src:      src,
		uploader: NewUploader(src),
		logger:   slog.Default(),
	}
}

// Process applies the upload policy to a generation result:
//
//  1. A present-but-empty images list is ErrNoImages regardless of
//     upload configuration.
//  2. A missing images key, or one that is not a list, passes through
//     unchanged.
//  3. With upload disabled, everything passes through unchanged.
//  4. Otherwise each base64-bearing entry is uploaded and becomes
//     {"url": hosted}; URL-form and non-object entries pass through.
//  5. First-failure-wins: the first rejected upload, in original order,
//     aborts the whole batch as *UploadError. Sibling uploads that
//     already succeeded are discarded, never reported as partial success.
//
// A transport-level upload error on one entry fails open: that entry
// keeps its original payload. Malformed base64 is returned as an error.
func (p *Processor) Process(result map[string]interface{}) (map[string]interface{}, error) {
	rawImages, ok := result["images"]
	if !ok {
		return result, nil
	}
	images, ok := rawImages.([]interface{})
	if !ok {
		return result, nil
	}
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if !config.UploadEnabled(p.src) {
		return result, nil
	}

	transformed := make([]interface{}, 0, len(images))
	var firstFailure *Failure
	for index, entry := range images {
		if firstFailure != nil {
			break
		}
		descriptor, ok := entry.(map[string]interface{})
		if !ok {
			transformed = append(transformed, entry)
			continue
		}

		b64, hasB64 := base64Payload(descriptor)
		if !hasB64 {
			transformed = append(transformed, entry)
			continue
		}

		mimeType, _ := descriptor["mime_type"].(string)
		if mimeType == "" {
			mimeType = "image/png"
		}

		hostedURL, failure, err := p.uploader.Upload(b64, mimeType)
		switch {
		case errors.Is(err, ErrInvalidBase64):
			return nil, err
		case err != nil:
			// Fail open on transport problems: hosting is best-effort,
			// the original payload is still a valid answer.
			p.logger.Warn("Image upload failed, keeping original payload", "index", index, "error", err)
			transformed = append(transformed, entry)
		case failure != nil:
			firstFailure = failure
		default:
			transformed = append(transformed, map[string]interface{}{"url": hostedURL})
		}
	}

	if firstFailure != nil {
		return nil, &UploadError{StatusCode: firstFailure.StatusCode, Body: firstFailure.Body}
	}

	processed := make(map[string]interface{}, len(result))
	for key, value := range result {
		processed[key] = value
	}
	processed["images"] = transformed
	return processed, nil
}

// base64Payload extracts inline image data from a descriptor, accepting
// both the "base64" and "b64_json" spellings.
func base64Payload(descriptor map[string]interface{}) (string, bool) {
	for _, key := range []string{"base64", "b64_json"} {
		if value, ok := descriptor[key].(string); ok && value != "" {
			return value, true
		}
	}
	return "", false
}
