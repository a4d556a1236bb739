package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaChat_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatReq
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Model != "m1" || len(req.Messages) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hello"},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "m1")
	got, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got != "hello" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestOllamaChat_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m1").Chat(context.Background(), nil)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.StatusCode != 500 || !strings.Contains(he.Body, "model exploded") {
		t.Fatalf("unexpected http error: %+v", he)
	}
}

func TestOllamaChat_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":`)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m1").Chat(context.Background(), nil)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestOllamaStream_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"red "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":"shoes"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))
	defer srv.Close()

	var seen []string
	full, err := Collect(context.Background(), NewOllamaProvider(srv.URL, "m1"), nil, func(s string) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if full != "red shoes" {
		t.Fatalf("unexpected text %q", full)
	}
	if len(seen) != 2 || seen[0] != "red " {
		t.Fatalf("unexpected progress callbacks: %v", seen)
	}
}

func TestOllamaStream_TruncatedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Red sho"},"done":false}`)
	}))
	defer srv.Close()

	full, err := Collect(context.Background(), NewOllamaProvider(srv.URL, "m1"), nil, nil)
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, errStreamTruncated) {
		t.Fatalf("expected truncated stream DecodeError, got text=%q err=%v", full, err)
	}
}

func TestOpenRouterStream_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `: keep-alive`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"red "}}]}`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"shoes"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
	}))
	defer srv.Close()

	full, err := Collect(context.Background(), NewOpenRouterProvider(srv.URL, "k", "some/model", "", ""), nil, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if full != "red shoes" {
		t.Fatalf("unexpected text %q", full)
	}
}

func TestOpenRouterStream_TruncatedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"Red sho"}}]}`)
	}))
	defer srv.Close()

	full, err := Collect(context.Background(), NewOpenRouterProvider(srv.URL, "k", "some/model", "", ""), nil, nil)
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, errStreamTruncated) {
		t.Fatalf("expected truncated stream DecodeError, got text=%q err=%v", full, err)
	}
}

func TestStream_NilClientIsError(t *testing.T) {
	cases := map[string]StreamProvider{
		"ollama":     &OllamaProvider{BaseURL: "http://127.0.0.1:1", Model: "m"},
		"openrouter": &OpenRouterProvider{BaseURL: "http://127.0.0.1:1", APIKey: "k", Model: "m"},
	}
	for name, sp := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Collect(context.Background(), sp, nil, nil)
			if err == nil || !strings.Contains(err.Error(), "http client is nil") {
				t.Fatalf("expected nil client error, got %v", err)
			}
		})
	}
}

func TestOpenRouterStream_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`)
		fmt.Fprintln(w, `data: {"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "some/model", "", "")
	_, err := Collect(context.Background(), p, []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestOpenRouterChat_RequiresKey(t *testing.T) {
	_, err := NewOpenRouterProvider("", "", "m", "", "").Chat(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestOpenAIImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req imagesGenerationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat != "" {
			t.Errorf("gpt-image models must not send response_format, got %q", req.ResponseFormat)
		}
		if req.Size != "512x512" {
			t.Errorf("unexpected size %q", req.Size)
		}
		fmt.Fprint(w, `{"data":[{"b64_json":"aGVsbG8=","revised_prompt":"red shoes, studio"}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIImageProvider(srv.URL, "k", "gpt-image-1", "1024x1024")
	img, err := p.GenerateImage(context.Background(), "red shoes", "512x512")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.B64JSON != "aGVsbG8=" || img.MimeType != "image/png" || img.RevisedPrompt != "red shoes, studio" {
		t.Fatalf("unexpected image: %+v", img)
	}
}

func TestOpenAIImage_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIImageProvider(srv.URL, "k", "dall-e-3", "").GenerateImage(context.Background(), "x", "")
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestRegistry_Default(t *testing.T) {
	reg := NewRegistry("Fake")
	called := ""
	reg.Register("fake", func(ctx context.Context, model string) (Provider, error) {
		called = model
		return nil, nil
	})
	if _, err := reg.Get(context.Background(), "", " m2 "); err != nil {
		t.Fatalf("get default: %v", err)
	}
	if called != "m2" {
		t.Fatalf("expected trimmed model, got %q", called)
	}
	if _, err := reg.Get(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if !reg.Has("") || reg.Has("nope") {
		t.Fatalf("unexpected Has results")
	}
}
