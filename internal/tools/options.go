package tools

import (
	"imagegen-mcp-server/internal/genai"
)

// NormalizeOptions maps the loosely-typed tools/call argument bag into
// generation options. Only explicitly-present, non-null recognized keys
// are carried over. An empty images array is indistinguishable from an
// absent one: both normalize to a nil Images slice.
func NormalizeOptions(args map[string]interface{}) genai.Options {
	var opts genai.Options

	if n, ok := intArg(args, "n"); ok {
		opts.N = &n
	}
	if size, ok := args["size"].(string); ok {
		opts.Size = size
	}
	if quality, ok := args["quality"].(string); ok {
		opts.Quality = quality
	}
	if aspectRatio, ok := args["aspect_ratio"].(string); ok {
		opts.AspectRatio = aspectRatio
	}
	if negativePrompt, ok := args["negative_prompt"].(string); ok {
		opts.NegativePrompt = negativePrompt
	}
	if n, ok := intArg(args, "seed"); ok {
		seed := int64(n)
		opts.Seed = &seed
	}
	if responseFormat, ok := args["response_format"].(string); ok {
		opts.ResponseFormat = responseFormat
	}

	if rawImages, ok := args["images"].([]interface{}); ok && len(rawImages) > 0 {
		images := make([]genai.ImageInput, 0, len(rawImages))
		for _, entry := range rawImages {
			if image, ok := parseImageInput(entry); ok {
				images = append(images, image)
			}
		}
		if len(images) > 0 {
			opts.Images = images
		}
	}

	return opts
}

// parseImageInput classifies one images entry into the tagged union.
// Unrecognized shapes are dropped.
func parseImageInput(entry interface{}) (genai.ImageInput, bool) {
	switch value := entry.(type) {
	case string:
		if value == "" {
			return genai.ImageInput{}, false
		}
		return genai.ImageInput{Kind: genai.ImageInputURL, URL: value}, true
	case map[string]interface{}:
		mimeType, _ := value["mime_type"].(string)
		for _, key := range []string{"base64", "b64_json"} {
			if b64, ok := value[key].(string); ok && b64 != "" {
				return genai.ImageInput{Kind: genai.ImageInputBase64, Base64: b64, MIMEType: mimeType}, true
			}
		}
		if url, ok := value["url"].(string); ok && url != "" {
			return genai.ImageInput{Kind: genai.ImageInputURLWithMime, URL: url, MIMEType: mimeType}, true
		}
		return genai.ImageInput{}, false
	default:
		return genai.ImageInput{}, false
	}
}

// intArg reads an integer argument. JSON numbers decode as float64, but
// pre-built argument maps in tests may carry native ints.
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch value := args[key].(type) {
	case float64:
		return int(value), true
	case int:
		return value, true
	case int64:
		return int(value), true
	default:
		return 0, false
	}
}
