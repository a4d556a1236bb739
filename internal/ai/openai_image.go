package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type ImageGeneration struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	MimeType      string `json:"mime_type"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageProvider generates a single image from a prompt.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt, size string) (ImageGeneration, error)
}

type OpenAIImageProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Client  *http.Client
}

func NewOpenAIImageProvider(baseURL, apiKey, model, size string) *OpenAIImageProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIImageProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Size:    size,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type imagesGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"` // b64_json|url
}

type imagesGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIImageProvider) GenerateImage(ctx context.Context, prompt, size string) (ImageGeneration, error) {
	var out ImageGeneration
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return out, errors.New("openai: image prompt required")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return out, errors.New("openai: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return out, errors.New("openai: image model is required")
	}
	if size == "" {
		size = p.Size
	}

	req := imagesGenerationRequest{
		Model:  p.Model,
		Prompt: prompt,
		N:      1,
		Size:   strings.TrimSpace(size),
	}
	// gpt-image-* always returns b64 and rejects response_format
	if !strings.HasPrefix(strings.ToLower(p.Model), "gpt-image-") {
		req.ResponseFormat = "b64_json"
	}

	resp, err := postJSON(ctx, p.Client, "openai", p.BaseURL+"/v1/images/generations",
		map[string]string{"Authorization": "Bearer " + p.APIKey}, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	var decoded imagesGenerationResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return out, &DecodeError{Provider: "openai", Err: err}
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return out, errors.New("openai: " + decoded.Error.Message)
	}
	if len(decoded.Data) == 0 {
		return out, &DecodeError{Provider: "openai", Err: errors.New("no image returned")}
	}
	item := decoded.Data[0]
	out.RevisedPrompt = strings.TrimSpace(item.RevisedPrompt)
	out.URL = strings.TrimSpace(item.URL)
	out.B64JSON = strings.TrimSpace(item.B64JSON)
	if out.URL == "" && out.B64JSON == "" {
		return out, &DecodeError{Provider: "openai", Err: errors.New("image response missing b64_json and url")}
	}
	out.MimeType = "image/png"
	return out, nil
}
