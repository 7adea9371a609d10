package imagehost

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen-mcp-server/internal/config"
)

// scriptedUploader replays one outcome per call, in order.
type scriptedUploader struct {
	outcomes []uploadOutcome
	calls    []string
}

type uploadOutcome struct {
	url     string
	failure *Failure
	err     error
}

func (u *scriptedUploader) Upload(b64Data, mimeType string) (string, *Failure, error) {
	u.calls = append(u.calls, b64Data)
	if len(u.outcomes) == 0 {
		return "", nil, fmt.Errorf("unexpected upload of %q", b64Data)
	}
	outcome := u.outcomes[0]
	u.outcomes = u.outcomes[1:]
	return outcome.url, outcome.failure, outcome.err
}

func newTestProcessor(src config.Source, uploader imageUploader) *Processor {
	return &Processor{
		src:      src,
		uploader: uploader,
		logger:   slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.Level(100)})),
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

var uploadEnabled = config.Static{config.EnvUploadURL: "https://files.example/upload"}

func TestProcess_MissingImagesKeyPassesThrough(t *testing.T) {
	uploader := &scriptedUploader{}
	processor := newTestProcessor(uploadEnabled, uploader)
	result := map[string]interface{}{"note": "no images here"}

	processed, err := processor.Process(result)

	require.NoError(t, err)
	assert.Equal(t, result, processed)
	assert.Empty(t, uploader.calls)
}

func TestProcess_NonListImagesPassesThrough(t *testing.T) {
	processor := newTestProcessor(uploadEnabled, &scriptedUploader{})
	result := map[string]interface{}{"images": "not a list"}

	processed, err := processor.Process(result)

	require.NoError(t, err)
	assert.Equal(t, result, processed)
}

func TestProcess_EmptyImagesIsError(t *testing.T) {
	tests := []struct {
		name string
		src  config.Source
	}{
		{"upload enabled", uploadEnabled},
		{"upload disabled", config.Static{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			processor := newTestProcessor(tc.src, &scriptedUploader{})

			processed, err := processor.Process(map[string]interface{}{"images": []interface{}{}})

			assert.Nil(t, processed)
			assert.ErrorIs(t, err, ErrNoImages)
		})
	}
}

func TestProcess_UploadDisabledKeepsBase64(t *testing.T) {
	uploader := &scriptedUploader{}
	processor := newTestProcessor(config.Static{}, uploader)
	result := map[string]interface{}{
		"images": []interface{}{
			map[string]interface{}{"b64_json": "aGVsbG8=", "mime_type": "image/png"},
		},
	}

	processed, err := processor.Process(result)

	require.NoError(t, err)
	assert.Equal(t, result, processed)
	assert.Empty(t, uploader.calls, "no uploads are attempted without an endpoint")
}

func TestProcess_RewritesBase64EntriesToURLs(t *testing.T) {
	uploader := &scriptedUploader{outcomes: []uploadOutcome{
		{url: "https://files.example/one"},
		{url: "https://files.example/two"},
	}}
	processor := newTestProcessor(uploadEnabled, uploader)

	processed, err := processor.Process(map[string]interface{}{
		"model": "sdxl",
		"images": []interface{}{
			map[string]interface{}{"b64_json": "Zmlyc3Q=", "mime_type": "image/jpeg"},
			map[string]interface{}{"url": "https://already.example/hosted.png"},
			map[string]interface{}{"base64": "c2Vjb25k"},
			"opaque entry",
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Zmlyc3Q=", "c2Vjb25k"}, uploader.calls,
		"only base64-bearing entries are uploaded")

	images, ok := processed["images"].([]interface{})
	require.True(t, ok)
	require.Len(t, images, 4)
	assert.Equal(t, map[string]interface{}{"url": "https://files.example/one"}, images[0])
	assert.Equal(t, map[string]interface{}{"url": "https://already.example/hosted.png"}, images[1])
	assert.Equal(t, map[string]interface{}{"url": "https://files.example/two"}, images[2])
	assert.Equal(t, "opaque entry", images[3])
	assert.Equal(t, "sdxl", processed["model"], "sibling keys are preserved")
}

func TestProcess_FirstFailureWins(t *testing.T) {
	uploader := &scriptedUploader{outcomes: []uploadOutcome{
		{url: "https://files.example/one"},
		{failure: &Failure{StatusCode: 413, Body: "too large"}},
	}}
	processor := newTestProcessor(uploadEnabled, uploader)

	processed, err := processor.Process(map[string]interface{}{
		"images": []interface{}{
			map[string]interface{}{"b64_json": "Zmlyc3Q="},
			map[string]interface{}{"b64_json": "c2Vjb25k"},
			map[string]interface{}{"b64_json": "dGhpcmQ="},
		},
	})

	assert.Nil(t, processed, "a succeeded sibling is never reported alongside a failure")
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, 413, uploadErr.StatusCode)
	assert.Equal(t, "too large", uploadErr.Body)
	assert.Len(t, uploader.calls, 2, "the batch stops at the first failure")
}

func TestProcess_TransportErrorFailsOpen(t *testing.T) {
	original := map[string]interface{}{"b64_json": "Zmlyc3Q=", "mime_type": "image/png"}
	uploader := &scriptedUploader{outcomes: []uploadOutcome{
		{err: errors.New("connection refused")},
		{url: "https://files.example/two"},
	}}
	processor := newTestProcessor(uploadEnabled, uploader)

	processed, err := processor.Process(map[string]interface{}{
		"images": []interface{}{
			original,
			map[string]interface{}{"b64_json": "c2Vjb25k"},
		},
	})

	require.NoError(t, err, "an unreachable host does not fail the generation")
	images, ok := processed["images"].([]interface{})
	require.True(t, ok)
	require.Len(t, images, 2)
	assert.Equal(t, original, images[0], "the entry keeps its original payload")
	assert.Equal(t, map[string]interface{}{"url": "https://files.example/two"}, images[1])
}

func TestProcess_InvalidBase64Propagates(t *testing.T) {
	uploader := &scriptedUploader{outcomes: []uploadOutcome{
		{err: fmt.Errorf("%w: illegal data", ErrInvalidBase64)},
	}}
	processor := newTestProcessor(uploadEnabled, uploader)

	processed, err := processor.Process(map[string]interface{}{
		"images": []interface{}{
			map[string]interface{}{"b64_json": "!!!"},
		},
	})

	assert.Nil(t, processed)
	assert.ErrorIs(t, err, ErrInvalidBase64)
}

func TestProcess_DefaultMIMETypeIsPNG(t *testing.T) {
	var seenMIME string
	uploader := &mimeRecordingUploader{url: "https://files.example/x", mime: &seenMIME}
	processor := newTestProcessor(uploadEnabled, uploader)

	_, err := processor.Process(map[string]interface{}{
		"images": []interface{}{map[string]interface{}{"b64_json": "aGVsbG8="}},
	})

	require.NoError(t, err)
	assert.Equal(t, "image/png", seenMIME)
}

type mimeRecordingUploader struct {
	url  string
	mime *string
}

func (u *mimeRecordingUploader) Upload(b64Data, mimeType string) (string, *Failure, error) {
	*u.mime = mimeType
	return u.url, nil, nil
}
