package imagehost

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen-mcp-server/internal/config"
)

// capturedUpload is one multipart request as seen by the fake host.
type capturedUpload struct {
	filename  string
	fileBytes []byte
	secret    string
	expires   string
	userAgent string
}

// fakeHost records uploads and replies with a scripted status and body.
func fakeHost(t *testing.T, status int, responseBody string) (*httptest.Server, *capturedUpload) {
	t.Helper()
	captured := &capturedUpload{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(10<<20))

		captured.userAgent = r.Header.Get("User-Agent")
		captured.secret = r.FormValue("secret")
		captured.expires = r.FormValue("expires")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		captured.filename = header.Filename
		captured.fileBytes, err = io.ReadAll(file)
		require.NoError(t, err)

		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestUpload_Success(t *testing.T) {
	server, captured := fakeHost(t, http.StatusOK, "https://files.example/abc123\n")
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	src := config.Static{
		config.EnvUploadURL:     server.URL,
		config.EnvUploadExpires: "24",
	}

	url, failure, err := NewUploader(src).Upload(base64.StdEncoding.EncodeToString(raw), "image/png")

	require.NoError(t, err)
	require.Nil(t, failure)
	assert.Equal(t, "https://files.example/abc123", url, "the response body is trimmed")
	assert.Equal(t, "image.png", captured.filename)
	assert.Equal(t, raw, captured.fileBytes)
	assert.Equal(t, "", captured.secret, "the secret field is present but empty")
	assert.Equal(t, "24", captured.expires)
	assert.Equal(t, config.DefaultUserAgent, captured.userAgent)
}

func TestUpload_FilenameFollowsMIMEType(t *testing.T) {
	tests := []struct {
		mimeType string
		filename string
	}{
		{"image/jpeg", "image.jpg"},
		{"image/jpg", "image.jpg"},
		{"image/gif", "image.gif"},
		{"image/webp", "image.webp"},
		{"image/png", "image.png"},
		{"application/pdf", "image.png"},
		{"", "image.png"},
	}
	for _, tc := range tests {
		t.Run(tc.mimeType, func(t *testing.T) {
			server, captured := fakeHost(t, http.StatusOK, "https://files.example/x")
			src := config.Static{config.EnvUploadURL: server.URL}

			_, failure, err := NewUploader(src).Upload(base64.StdEncoding.EncodeToString([]byte("data")), tc.mimeType)

			require.NoError(t, err)
			require.Nil(t, failure)
			assert.Equal(t, tc.filename, captured.filename)
		})
	}
}

func TestUpload_DefaultExpiresAndCustomUserAgent(t *testing.T) {
	server, captured := fakeHost(t, http.StatusOK, "https://files.example/x")
	src := config.Static{
		config.EnvUploadURL:       server.URL,
		config.EnvUploadUserAgent: "my-agent/2.0",
	}

	_, failure, err := NewUploader(src).Upload(base64.StdEncoding.EncodeToString([]byte("data")), "image/png")

	require.NoError(t, err)
	require.Nil(t, failure)
	assert.Equal(t, "1", captured.expires, "expiration defaults to one hour")
	assert.Equal(t, "my-agent/2.0", captured.userAgent)
}

func TestUpload_NonSuccessStatusIsFailureValue(t *testing.T) {
	server, _ := fakeHost(t, http.StatusInternalServerError, "disk full\n")
	src := config.Static{config.EnvUploadURL: server.URL}

	url, failure, err := NewUploader(src).Upload(base64.StdEncoding.EncodeToString([]byte("data")), "image/png")

	require.NoError(t, err, "a rejected upload is a value, not an error")
	require.NotNil(t, failure)
	assert.Empty(t, url)
	assert.Equal(t, http.StatusInternalServerError, failure.StatusCode)
	assert.Equal(t, "disk full", failure.Body)
}

func TestUpload_InvalidBase64(t *testing.T) {
	src := config.Static{config.EnvUploadURL: "http://127.0.0.1:0"}

	_, failure, err := NewUploader(src).Upload("not valid base64!!!", "image/png")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidBase64)
	assert.Nil(t, failure)
}

func TestUpload_UnreachableHost(t *testing.T) {
	// A closed port: the request must fail at the transport level.
	src := config.Static{config.EnvUploadURL: "http://127.0.0.1:1"}

	_, failure, err := NewUploader(src).Upload(base64.StdEncoding.EncodeToString([]byte("data")), "image/png")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidBase64)
	assert.Nil(t, failure)
}

func TestCleanBase64Data(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare", "aGVsbG8=", "aGVsbG8="},
		{"data uri", "data:image/png;base64,aGVsbG8=", "aGVsbG8="},
		{"whitespace", "  aGVsbG8=\n", "aGVsbG8="},
		{"comma without prefix", "a,b", "a,b"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, CleanBase64Data(tc.input))
		})
	}
}
