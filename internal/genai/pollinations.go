package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"imagegen-mcp-server/internal/config"
)

const pollinationsAPIURL = "https://image.pollinations.ai/prompt/"

const pollinationsDefaultModel = "flux"

var pollinationsModels = []string{"flux", "turbo", "kontext"}

type pollinationsGenerator struct {
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func newPollinationsGenerator(src config.Source, model string) (Generator, error) {
	apiKey, err := credential(src, "POLLINATIONS_AI_API_KEY", "pollinations")
	if err != nil {
		return nil, err
	}
	return &pollinationsGenerator{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
		logger: slog.Default(),
	}, nil
}

func (g *pollinationsGenerator) Close() error { return nil }

// Generate issues a single GET; the prompt travels path-escaped in the
// URL and the raw response body is the image.
func (g *pollinationsGenerator) Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error) {
	if opts.ResponseFormat == "url" {
		return nil, newError(KindUnsupported, "provider %q only returns base64 image data", "pollinations")
	}

	model := g.model
	if model == "" {
		model = pollinationsDefaultModel
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("nologo", "true")
	if opts.Size != "" {
		width, height, err := parseSize(opts.Size, 0, 0)
		if err != nil {
			return nil, err
		}
		params.Set("width", fmt.Sprintf("%d", width))
		params.Set("height", fmt.Sprintf("%d", height))
	}
	if opts.Seed != nil {
		params.Set("seed", fmt.Sprintf("%d", *opts.Seed))
	}
	if len(opts.Images) > 0 {
		if model != "kontext" {
			return nil, newError(KindUnsupported, "model %q does not accept input images", model)
		}
		image := opts.Images[0]
		switch image.Kind {
		case ImageInputURL, ImageInputURLWithMime:
			params.Set("image", image.URL)
		case ImageInputBase64:
			return nil, newError(KindUnsupported, "provider %q requires input images by URL", "pollinations")
		}
	}

	fullURL := pollinationsAPIURL + url.PathEscape(prompt) + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	g.logger.Debug("Calling pollinations.ai", "model", model)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(KindAPI, "pollinations request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, drainError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindAPI, "failed to read image data: %v", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/png"
	}

	return map[string]interface{}{
		"images": []interface{}{
			map[string]interface{}{
				"b64_json":  base64.StdEncoding.EncodeToString(raw),
				"mime_type": mimeType,
			},
		},
	}, nil
}

func (g *pollinationsGenerator) Models(ctx context.Context) ([]string, error) {
	return append([]string(nil), pollinationsModels...), nil
}
