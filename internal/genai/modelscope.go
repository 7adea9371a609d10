package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"imagegen-mcp-server/internal/config"
)

const (
	modelScopeAPIURL  = "https://api-inference.modelscope.cn/v1/images/generations"
	modelScopeTaskURL = "https://api-inference.modelscope.cn/v1/tasks/"

	modelScopePollInterval = 5 * time.Second
	modelScopeMaxPolls     = 90
)

const modelScopeDefaultModel = "Qwen/Qwen-Image"

var modelScopeModels = []string{
	"Qwen/Qwen-Image",
	"Qwen/Qwen-Image-Edit",
	"MusePublic/FLUX.1-dev",
}

type modelScopeGenerator struct {
	apiKey string
	model  string
	client *http.Client
	logger *slog.Logger
}

func newModelScopeGenerator(src config.Source, model string) (Generator, error) {
	apiKey, err := credential(src, "MODELSCOPE_API_KEY", "modelscope")
	if err != nil {
		return nil, err
	}
	return &modelScopeGenerator{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{},
		logger: slog.Default(),
	}, nil
}

func (g *modelScopeGenerator) Close() error { return nil }

type modelScopePayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Size           string `json:"size,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

type modelScopeAsyncResponse struct {
	TaskID string `json:"task_id"`
}

type modelScopeTaskResponse struct {
	TaskStatus   string   `json:"task_status"`
	OutputImages []string `json:"output_images"`
	Errors       struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Generate submits an async generation task and polls until it settles.
func (g *modelScopeGenerator) Generate(ctx context.Context, prompt string, opts Options) (map[string]interface{}, error) {
	if opts.ResponseFormat == "b64_json" {
		return nil, newError(KindUnsupported, "provider %q only returns image URLs", "modelscope")
	}
	if len(opts.Images) > 1 {
		return nil, newError(KindUnsupported, "provider %q accepts at most one input image", "modelscope")
	}

	model := g.model
	if model == "" {
		model = modelScopeDefaultModel
	}

	payload := modelScopePayload{
		Model:          model,
		Prompt:         prompt,
		NegativePrompt: opts.NegativePrompt,
		Size:           opts.Size,
		Seed:           opts.Seed,
	}
	if len(opts.Images) == 1 {
		image := opts.Images[0]
		switch image.Kind {
		case ImageInputURL, ImageInputURLWithMime:
			payload.ImageURL = image.URL
		case ImageInputBase64:
			payload.ImageURL = dataURI(image.Base64, image.MIMEType)
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, modelScopeAPIURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, newError(KindInvalidRequest, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("X-ModelScope-Async-Mode", "true")

	g.logger.Debug("Submitting ModelScope generation task", "model", model)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newError(KindAPI, "modelscope request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, drainError(resp)
	}

	var asyncResp modelScopeAsyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&asyncResp); err != nil {
		return nil, newError(KindAPI, "failed to decode task response: %v", err)
	}
	if asyncResp.TaskID == "" {
		return nil, newError(KindAPI, "modelscope returned no task id")
	}

	return g.pollTask(ctx, asyncResp.TaskID)
}

func (g *modelScopeGenerator) pollTask(ctx context.Context, taskID string) (map[string]interface{}, error) {
	for attempt := 0; attempt < modelScopeMaxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, newError(KindAPI, "modelscope task %s: %v", taskID, ctx.Err())
		case <-time.After(modelScopePollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelScopeTaskURL+taskID, nil)
		if err != nil {
			return nil, newError(KindInvalidRequest, "failed to create task request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		req.Header.Set("X-ModelScope-Task-Type", "image_generation")

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, newError(KindAPI, "modelscope task poll failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := drainError(resp)
			resp.Body.Close()
			return nil, apiErr
		}

		var task modelScopeTaskResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&task)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, newError(KindAPI, "failed to decode task status: %v", decodeErr)
		}

		switch task.TaskStatus {
		case "SUCCEED":
			images := make([]interface{}, 0, len(task.OutputImages))
			for _, url := range task.OutputImages {
				images = append(images, map[string]interface{}{"url": url})
			}
			return map[string]interface{}{"images": images}, nil
		case "FAILED":
			return nil, newError(KindAPI, "modelscope task failed: %s", task.Errors.Message)
		default:
			g.logger.Debug("ModelScope task still running", "task_id", taskID, "status", task.TaskStatus)
		}
	}
	return nil, newError(KindAPI, "modelscope task %s did not finish after %s", taskID,
		fmt.Sprint(time.Duration(modelScopeMaxPolls)*modelScopePollInterval))
}

func (g *modelScopeGenerator) Models(ctx context.Context) ([]string, error) {
	return append([]string(nil), modelScopeModels...), nil
}
