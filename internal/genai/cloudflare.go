package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"imagegen-mcp-server/internal/config"
)

const cloudflareAPIURLFormat = "https://api.cloudflare.com/client/v4/accounts/%s/ai/run/%s"

const cloudflareDefaultModel = "@cf/black-forest-labs/flux-1-schnell"

// cloudflareModels lists the Workers AI text-to-image models this backend
// knows, with the request parameters each one accepts.
var cloudflareModels = []struct {
	Name            string
	SupportedParams []string
}{
	{Name: "@cf/black-forest-labs/flux-1-schnell", SupportedParams: []string{"seed"}},
	{Name: "@cf/stabilityai/stable-diffusion-xl-base-1.0", SupportedParams: []string{"width", "height", "negative_prompt", "seed"}},
	{Name: "@cf/lykon/dreamshaper-8-lcm", SupportedParams: []string{"width", "height", "negative_prompt", "seed"}},
}

type cloudflareGenerator struct {
	accountID string
	apiToken  string
	model     string
	client    *http.Client
	logger    *slog.Logger
}

func newCloudflareGenerator(src config.Source, model string) (Generator, error) {
	apiToken, err := credential(src, "CLOUDFLARE_API_TOKEN", "cloudflare")
	if err != nil {
		return nil, err
	}
	accountID := src.Getenv("CLOUDFLARE_ACCOUNT_ID")
	if accountID == "" {
		return nil, newError(KindConfiguration, "CLOUDFLARE_ACCOUNT_ID is not set; provider %q is unavailable", "cloudflare")
	}

	return &cloudflareGenerator{
		accountID: accountID,
		apiToken:  apiToken,
		model:     model,
		client:    &http.Client{},
		logger:    slog.Default(),
	}, nil
}

func (g *cloudflareGenerator) Close() error { return nil }

type cloudflarePayload struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

// cloudflareJSONResponse matches the JSON response carrying base64 image
// data; some models reply with raw image bytes instead.
type cloudflareJSONResponse struct {
	Result struct {
		Image string `json:"image"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (g *cloudflareGenerator) Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error) {
	if len(opts.Images) > 0 {
		return nil, newError(KindUnsupported, "provider %q does not accept input images", "cloudflare")
	}
	if opts.ResponseFormat == "url" {
		return nil, newError(KindUnsupported, "provider %q only returns base64 image data", "cloudflare")
	}

	model := g.model
	if model == "" {
		model = cloudflareDefaultModel
	}
	supported := cloudflareParams(model)
	if supported == nil {
		return nil, newError(KindInvalidRequest, "model %q is not supported by provider %q", model, "cloudflare")
	}

	payload := cloudflarePayload{Prompt: prompt}
	if supported["width"] {
		width, height, err := parseSize(opts.Size, 0, 0)
		if err != nil {
			return nil, err
		}
		payload.Width = width
		payload.Height = height
	}
	if supported["negative_prompt"] {
		payload.NegativePrompt = opts.NegativePrompt
	}
	if supported["seed"] && opts.Seed != nil {
		payload.Seed = *opts.Seed
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to marshal payload: %v", err)
	}

	apiURL := fmt.Sprintf(cloudflareAPIURLFormat, g.accountID, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiToken)

	g.logger.Debug("Calling Cloudflare Workers AI", "model", model)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(KindAPI, "cloudflare request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, drainError(resp)
	}

	// flux replies with JSON-wrapped base64; the stable-diffusion models
	// stream raw PNG bytes.
	var imageB64 string
	if resp.Header.Get("Content-Type") == "image/png" {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, newError(KindAPI, "failed to read image response: %v", err)
		}
		imageB64 = base64.StdEncoding.EncodeToString(raw)
	} else {
		var decoded cloudflareJSONResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, newError(KindAPI, "failed to decode response: %v", err)
		}
		if !decoded.Success || len(decoded.Errors) > 0 {
			if len(decoded.Errors) > 0 {
				return nil, newError(KindAPI, "%s", decoded.Errors[0].Message)
			}
			return nil, newError(KindAPI, "cloudflare reported failure with no error details")
		}
		imageB64 = decoded.Result.Image
	}

	return map[string]interface{}{
		"images": []interface{}{
			map[string]interface{}{
				"b64_json":  imageB64,
				"mime_type": "image/png",
			},
		},
	}, nil
}

func (g *cloudflareGenerator) Models(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(cloudflareModels))
	for _, m := range cloudflareModels {
		names = append(names, m.Name)
	}
	return names, nil
}

func cloudflareParams(model string) map[string]bool {
	for _, m := range cloudflareModels {
		if m.Name == model {
			supported := make(map[string]bool, len(m.SupportedParams))
			for _, p := range m.SupportedParams {
				supported[p] = true
			}
			return supported
		}
	}
	return nil
}
