// Package app assembles the pieces shared by cmd/api and cmd/worker.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/genjobs/internal/ai"
	"github.com/suPer8Hu/genjobs/internal/config"
	"github.com/suPer8Hu/genjobs/internal/genjob"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

// BuildRegistry registers every text provider the config enables. Ollama is
// always available; OpenRouter only with an API key.
func BuildRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry(cfg.AIProvider)

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	if cfg.OpenRouterAPIKey != "" {
		reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
			_ = ctx
			m := strings.TrimSpace(model)
			if m == "" {
				m = cfg.OpenRouterModel
			}
			return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
		})
	}
	return reg
}

// BuildImageProvider returns nil when no OpenAI key is configured; image jobs
// then fail with a clear error instead of hanging.
func BuildImageProvider(cfg config.Config) ai.ImageProvider {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return ai.NewOpenAIImageProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIImageModel, cfg.OpenAIImageSize)
}

func BuildGenerators(cfg config.Config, reg *ai.Registry, log *logger.Logger) map[genjob.Kind]genjob.Generator {
	gens := map[genjob.Kind]genjob.Generator{
		genjob.KindArticle: &genjob.ArticleGenerator{
			Providers:     reg,
			CallTimeout:   cfg.JobCallTimeout,
			FlushInterval: time.Second,
			Log:           log,
		},
	}
	img := &genjob.ImageGenerator{CallTimeout: cfg.JobCallTimeout}
	// keep the interface nil when unconfigured
	if p := BuildImageProvider(cfg); p != nil {
		img.Provider = p
	}
	gens[genjob.KindImage] = img
	return gens
}
