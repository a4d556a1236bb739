package app

import (
	"context"
	"testing"

	"github.com/suPer8Hu/genjobs/internal/config"
	"github.com/suPer8Hu/genjobs/internal/genjob"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

func TestBuildRegistry(t *testing.T) {
	reg := BuildRegistry(config.Config{AIProvider: "ollama", OllamaModel: "llama3:latest"})
	if !reg.Has("") || !reg.Has("ollama") {
		t.Fatalf("expected ollama as default")
	}
	if reg.Has("openrouter") {
		t.Fatalf("openrouter must need an api key")
	}
	if _, err := reg.Get(context.Background(), "", ""); err != nil {
		t.Fatalf("get default: %v", err)
	}

	reg = BuildRegistry(config.Config{AIProvider: "ollama", OpenRouterAPIKey: "k"})
	if !reg.Has("openrouter") {
		t.Fatalf("expected openrouter with api key")
	}
}

func TestBuildGenerators(t *testing.T) {
	cfg := config.Config{AIProvider: "ollama"}
	gens := BuildGenerators(cfg, BuildRegistry(cfg), logger.Nop())
	if gens[genjob.KindArticle] == nil || gens[genjob.KindImage] == nil {
		t.Fatalf("expected both generators, got %v", gens)
	}
	img := gens[genjob.KindImage].(*genjob.ImageGenerator)
	if img.Provider != nil {
		t.Fatalf("image provider must stay nil without an api key")
	}
	if BuildImageProvider(config.Config{OpenAIAPIKey: "k"}) == nil {
		t.Fatalf("expected image provider with api key")
	}
}
