package tools

// Server identity reported by initialize.
const (
	protocolVersion = "2024-11-05"
	serverName      = "imagegen-mcp-server"
	serverVersion   = "0.1.0"
)

// toolDefinitions builds the tools/list payload. Provider enums are
// recomputed from the live environment on every call, so a credential
// exported after startup shows up on the next listing.
func toolDefinitions(availableProviders []string) []map[string]interface{} {
	providerEnum := make([]interface{}, 0, len(availableProviders))
	for _, name := range availableProviders {
		providerEnum = append(providerEnum, name)
	}

	return []map[string]interface{}{
		{
			"name":        "generate_image",
			"description": "Generates one or more images from a text prompt using the selected provider. Inline base64 results are re-hosted as URLs when an upload endpoint is configured.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"provider": map[string]interface{}{
						"type":        "string",
						"enum":        providerEnum,
						"description": "Provider to generate with. Only providers with configured credentials are listed.",
					},
					"prompt": map[string]interface{}{
						"type":        "string",
						"description": "Text prompt describing the desired image.",
					},
					"model": map[string]interface{}{
						"type":        "string",
						"description": "Optional: provider-specific model name. Each provider falls back to a sensible default.",
					},
					"n": map[string]interface{}{
						"type":        "integer",
						"description": "Optional: number of images to generate.",
					},
					"size": map[string]interface{}{
						"type":        "string",
						"description": "Optional: output size as WIDTHxHEIGHT, e.g. 1024x1024.",
					},
					"quality": map[string]interface{}{
						"type":        "string",
						"description": "Optional: quality hint for providers that support it.",
					},
					"aspect_ratio": map[string]interface{}{
						"type":        "string",
						"description": "Optional: aspect ratio, e.g. 16:9.",
					},
					"negative_prompt": map[string]interface{}{
						"type":        "string",
						"description": "Optional: what to avoid in the image.",
					},
					"seed": map[string]interface{}{
						"type":        "integer",
						"description": "Optional: random seed for reproducible results.",
					},
					"response_format": map[string]interface{}{
						"type":        "string",
						"enum":        []interface{}{"url", "b64_json"},
						"description": "Optional: preferred image payload format.",
					},
					"images": map[string]interface{}{
						"type":        "array",
						"description": "Optional: input images for image-to-image generation. Each entry is a URL string, a {url, mime_type} object, or a {base64|b64_json, mime_type} object.",
						"items": map[string]interface{}{
							"anyOf": []interface{}{
								map[string]interface{}{"type": "string"},
								map[string]interface{}{"type": "object"},
							},
						},
					},
				},
				"required": []string{"provider", "prompt"},
			},
		},
		{
			"name":        "list_models",
			"description": "Lists the models offered by one provider.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"provider": map[string]interface{}{
						"type":        "string",
						"enum":        providerEnum,
						"description": "Provider whose models to list.",
					},
				},
				"required": []string{"provider"},
			},
		},
		{
			"name":        "list_providers",
			"description": "Lists every supported provider and whether its credentials are configured.",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
