// Package genai implements the image-generation collaborator: a closed
// set of provider backends behind a single Generator interface, with a
// fixed error taxonomy the MCP layer translates into tool-level messages.
package genai

import (
	"context"
	"fmt"

	"imagegen-mcp-server/internal/config"
)

// Kind classifies a generation failure. The set is closed: callers can
// switch exhaustively over it.
type Kind int

const (
	KindAuth Kind = iota
	KindRateLimit
	KindInvalidRequest
	KindAPI
	KindConfiguration
	KindProviderNotFound
	KindUnsupported
)

// Error is the failure type every backend returns. StatusCode is set
// only for KindAPI.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Kind == KindAPI && e.StatusCode != 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ImageInputKind tags the three accepted image-input shapes.
type ImageInputKind int

const (
	// ImageInputURL is a bare URL string.
	ImageInputURL ImageInputKind = iota
	// ImageInputURLWithMime is a {url, mime_type} object.
	ImageInputURLWithMime
	// ImageInputBase64 is a {base64|b64_json, mime_type} object.
	ImageInputBase64
)

// ImageInput is one normalized input image for image-to-image requests.
type ImageInput struct {
	Kind     ImageInputKind
	URL      string
	Base64   string
	MIMEType string
}

// Options carries the recognized generation options. Pointer fields
// distinguish "absent" from a zero value; Images is nil when the caller
// supplied no input images (an empty list normalizes to nil).
type Options struct {
	N              *int
	Size           string
	Quality        string
	AspectRatio    string
	NegativePrompt string
	Seed           *int64
	ResponseFormat string
	Images         []ImageInput
}

// Generator is the per-call generation client. Generate returns a result
// mapping whose "images" entry, when present, is a list of descriptor
// objects ({"url": ...} or {"b64_json": ..., "mime_type": ...}).
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error)
	Models(ctx context.Context) ([]string, error)
	Close() error
}

// providerCredentials is the fixed provider table. One credential
// variable gates each provider's availability.
var providerCredentials = []struct {
	Name   string
	EnvVar string
}{
	{"clarifai", "CLARIFAI_PAT"},
	{"cloudflare", "CLOUDFLARE_API_TOKEN"},
	{"fal", "FAL_KEY"},
	{"modelscope", "MODELSCOPE_API_KEY"},
	{"pollinations", "POLLINATIONS_AI_API_KEY"},
}

// Providers returns every supported provider name, available or not.
func Providers() []string {
	names := make([]string, 0, len(providerCredentials))
	for _, p := range providerCredentials {
		names = append(names, p.Name)
	}
	return names
}

// Available returns the providers whose credential variable is set and
// non-empty. Derived from the Source on every call so credential changes
// are observed without a restart.
func Available(src config.Source) []string {
	names := make([]string, 0, len(providerCredentials))
	for _, p := range providerCredentials {
		if src.Getenv(p.EnvVar) != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

// Factory constructs a Generator for one (provider, model) pair. The
// router holds one so tests can substitute a mock.
type Factory func(src config.Source, provider, model string) (Generator, error)

// ClarifaiAddr is the gRPC address the clarifai backend dials. Set once
// at startup from the -clarifai-addr flag.
var ClarifaiAddr = "api.clarifai.com:443"

// New constructs the backend for the named provider. Model may be empty;
// backends fall back to their default model.
func New(src config.Source, provider, model string) (Generator, error) {
	switch provider {
	case "clarifai":
		return newClarifaiGenerator(src, model)
	case "cloudflare":
		return newCloudflareGenerator(src, model)
	case "fal":
		return newFalGenerator(src, model)
	case "modelscope":
		return newModelScopeGenerator(src, model)
	case "pollinations":
		return newPollinationsGenerator(src, model)
	default:
		return nil, newError(KindProviderNotFound, "unsupported provider %q", provider)
	}
}

// credential fetches the provider's credential variable, as a
// configuration error when missing.
func credential(src config.Source, envVar, provider string) (string, error) {
	value := src.Getenv(envVar)
	if value == "" {
		return "", newError(KindConfiguration, "%s is not set; provider %q is unavailable", envVar, provider)
	}
	return value, nil
}
