package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"imagegen-mcp-server/internal/config"
)

const falAPIBaseURL = "https://fal.run/fal-ai/"

const falDefaultModel = "flux/schnell"

var falModels = []string{
	"flux/schnell",
	"flux/dev",
	"flux-pro",
	"bytedance/seedream/v4/edit",
}

type falGenerator struct {
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func newFalGenerator(src config.Source, model string) (Generator, error) {
	apiKey, err := credential(src, "FAL_KEY", "fal")
	if err != nil {
		return nil, err
	}
	return &falGenerator{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
		logger: slog.Default(),
	}, nil
}

func (g *falGenerator) Close() error { return nil }

type falPayload struct {
	Prompt              string   `json:"prompt"`
	NegativePrompt      string   `json:"negative_prompt,omitempty"`
	ImageURLs           []string `json:"image_urls,omitempty"`
	NumImages           int      `json:"num_images,omitempty"`
	Seed                *int64   `json:"seed,omitempty"`
	EnableSafetyChecker bool     `json:"enable_safety_checker"`
	ImageSize           *struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image_size,omitempty"`
}

type falResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

func (g *falGenerator) Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error) {
	if opts.ResponseFormat == "b64_json" {
		return nil, newError(KindUnsupported, "provider %q only returns image URLs", "fal")
	}

	model := g.model
	if model == "" {
		model = falDefaultModel
	}

	payload := falPayload{
		Prompt:              prompt,
		NegativePrompt:      opts.NegativePrompt,
		Seed:                opts.Seed,
		EnableSafetyChecker: false,
	}
	if opts.N != nil {
		payload.NumImages = *opts.N
	}
	if opts.Size != "" {
		width, height, err := parseSize(opts.Size, 0, 0)
		if err != nil {
			return nil, err
		}
		payload.ImageSize = &struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		}{Width: width, Height: height}
	}
	for _, image := range opts.Images {
		switch image.Kind {
		case ImageInputURL, ImageInputURLWithMime:
			payload.ImageURLs = append(payload.ImageURLs, image.URL)
		case ImageInputBase64:
			payload.ImageURLs = append(payload.ImageURLs, dataURI(image.Base64, image.MIMEType))
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, falAPIBaseURL+model, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+g.apiKey)

	g.logger.Debug("Calling fal.run", "model", model)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(KindAPI, "fal request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, drainError(resp)
	}

	var decoded falResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, newError(KindAPI, "failed to decode response: %v", err)
	}

	images := make([]interface{}, 0, len(decoded.Images))
	for _, image := range decoded.Images {
		descriptor := map[string]interface{}{"url": image.URL}
		if image.ContentType != "" {
			descriptor["mime_type"] = image.ContentType
		}
		images = append(images, descriptor)
	}

	return map[string]interface{}{"images": images}, nil
}

func (g *falGenerator) Models(ctx context.Context) ([]string, error) {
	return append([]string(nil), falModels...), nil
}
