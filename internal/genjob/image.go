package genjob

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/genjobs/internal/ai"
)

type ImageResult struct {
	Prompt        string `json:"prompt"`
	URL           string `json:"url"`
	MimeType      string `json:"mime_type"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Size          string `json:"size,omitempty"`
}

type ImageGenerator struct {
	Provider    ai.ImageProvider
	CallTimeout time.Duration
}

func (g *ImageGenerator) Generate(ctx context.Context, job *Job, in Input, r *Reporter) (any, error) {
	if g.Provider == nil {
		return nil, errors.New("image generation is not configured")
	}
	if g.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.CallTimeout)
		defer cancel()
	}

	img, err := g.Provider.GenerateImage(ctx, imagePrompt(in), in.Size)
	if err != nil {
		return nil, &ExternalAPIError{Op: "generate image", Err: err}
	}

	url := img.URL
	if url == "" {
		url = "data:" + img.MimeType + ";base64," + img.B64JSON
	}
	return ImageResult{
		Prompt:        in.Prompt,
		URL:           url,
		MimeType:      img.MimeType,
		RevisedPrompt: img.RevisedPrompt,
		Size:          in.Size,
	}, nil
}

func imagePrompt(in Input) string {
	lines := in.ContextLines()
	if len(lines) == 0 {
		return in.Prompt
	}
	return in.Prompt + ". " + strings.Join(lines, "; ")
}
