package genai

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen-mcp-server/internal/config"
)

func TestProviders_StableOrder(t *testing.T) {
	assert.Equal(t, []string{"clarifai", "cloudflare", "fal", "modelscope", "pollinations"}, Providers())
}

func TestAvailable_DerivedFromCredentials(t *testing.T) {
	tests := []struct {
		name     string
		src      config.Source
		expected []string
	}{
		{"nothing set", config.Static{}, []string{}},
		{"one provider", config.Static{"FAL_KEY": "k"}, []string{"fal"}},
		{
			"several providers",
			config.Static{"CLARIFAI_PAT": "p", "MODELSCOPE_API_KEY": "m", "POLLINATIONS_AI_API_KEY": "x"},
			[]string{"clarifai", "modelscope", "pollinations"},
		},
		{"empty value is unset", config.Static{"CLOUDFLARE_API_TOKEN": ""}, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Available(tc.src))
		})
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	generator, err := New(config.Static{}, "dalle", "")

	assert.Nil(t, generator)
	var genErr *Error
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindProviderNotFound, genErr.Kind)
	assert.Contains(t, genErr.Message, "dalle")
}

func TestNew_MissingCredentialIsConfigurationError(t *testing.T) {
	for _, provider := range []string{"cloudflare", "fal", "modelscope", "pollinations"} {
		t.Run(provider, func(t *testing.T) {
			generator, err := New(config.Static{}, provider, "")

			assert.Nil(t, generator)
			var genErr *Error
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, KindConfiguration, genErr.Kind)
		})
	}
}

func TestError_String(t *testing.T) {
	withStatus := &Error{Kind: KindAPI, StatusCode: 502, Message: "bad gateway"}
	assert.Equal(t, "API error (status 502): bad gateway", withStatus.Error())

	plain := &Error{Kind: KindAuth, Message: "key rejected"}
	assert.Equal(t, "key rejected", plain.Error())
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		status       int
		expectedKind Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadRequest, KindInvalidRequest},
		{http.StatusUnprocessableEntity, KindInvalidRequest},
		{http.StatusInternalServerError, KindAPI},
		{http.StatusNotFound, KindAPI},
	}
	for _, tc := range tests {
		mapped := mapHTTPStatus(tc.status, []byte(" details \n"))
		assert.Equal(t, tc.expectedKind, mapped.Kind, "status %d", tc.status)
		assert.Equal(t, "details", mapped.Message)
		if tc.expectedKind == KindAPI {
			assert.Equal(t, tc.status, mapped.StatusCode)
		}
	}
}

func TestParseSize(t *testing.T) {
	width, height, err := parseSize("", 512, 768)
	require.NoError(t, err)
	assert.Equal(t, 512, width)
	assert.Equal(t, 768, height)

	width, height, err = parseSize("1024x576", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1024, width)
	assert.Equal(t, 576, height)

	width, height, err = parseSize("1024X576", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1024, width)
	assert.Equal(t, 576, height)

	for _, bad := range []string{"1024", "x576", "1024x", "0x100", "-1x100", "widexhigh"} {
		_, _, err := parseSize(bad, 512, 512)
		var genErr *Error
		require.ErrorAs(t, err, &genErr, "size %q", bad)
		assert.Equal(t, KindInvalidRequest, genErr.Kind)
	}
}

func TestDataURI(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", dataURI("aGVsbG8=", "image/jpeg"))
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", dataURI("aGVsbG8=", ""))
}
