package genjob

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/genjobs/internal/ai"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

// ProviderSource resolves the text provider a job asked for.
type ProviderSource interface {
	Get(ctx context.Context, name string, model string) (ai.Provider, error)
}

type Article struct {
	Keyword         string   `json:"keyword"`
	Title           string   `json:"title,omitempty"`
	Content         string   `json:"content"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// ArticleGenerator writes an article, then asks for optional SEO metadata.
type ArticleGenerator struct {
	Providers     ProviderSource
	CallTimeout   time.Duration
	FlushInterval time.Duration
	Log           *logger.Logger
}

func (g *ArticleGenerator) Generate(ctx context.Context, job *Job, in Input, r *Reporter) (any, error) {
	provider, err := g.Providers.Get(ctx, in.Provider, in.Model)
	if err != nil {
		return nil, err
	}

	content, err := g.writeArticle(ctx, provider, in, r)
	if err != nil {
		return nil, err
	}
	if err := r.Partial(ProgressMainContent, content); err != nil {
		return nil, err
	}

	out := Article{
		Keyword:  in.Prompt,
		Content:  content,
		Provider: in.Provider,
		Model:    in.Model,
	}

	// enrichment is best effort
	meta, err := g.enrich(ctx, provider, in, content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return nil, err
		}
		if g.Log != nil {
			g.Log.Warn("article enrichment failed, completing without metadata", "job_id", job.ID, "error", err)
		}
		return out, nil
	}
	out.Title = meta.Title
	out.MetaDescription = meta.MetaDescription
	out.Tags = meta.Tags
	return out, nil
}

func (g *ArticleGenerator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.CallTimeout)
}

func (g *ArticleGenerator) writeArticle(ctx context.Context, provider ai.Provider, in Input, r *Reporter) (string, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	msgs := articleMessages(in)
	var (
		content string
		err     error
	)
	if sp, ok := provider.(ai.StreamProvider); ok {
		flush := g.FlushInterval
		if flush <= 0 {
			flush = time.Second
		}
		// stops the stream once another writer has finished the job
		sctx, stop := context.WithCancelCause(cctx)
		defer stop(nil)

		var last time.Time
		content, err = ai.Collect(sctx, sp, msgs, func(sofar string) {
			if time.Since(last) < flush {
				return
			}
			last = time.Now()
			// other preview write errors surface at the next checkpoint
			if perr := r.Partial(ProgressStreaming, sofar); errors.Is(perr, ErrLostClaim) {
				stop(perr)
			}
		})
		if cause := context.Cause(sctx); errors.Is(cause, ErrLostClaim) {
			return "", cause
		}
	} else {
		content, err = provider.Chat(cctx, msgs)
	}
	if err != nil {
		return "", &ExternalAPIError{Op: "generate article", Err: err}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &ExternalAPIError{Op: "generate article", Err: errors.New("provider returned empty content")}
	}
	return content, nil
}

type articleMeta struct {
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description"`
	Tags            []string `json:"tags"`
}

func (g *ArticleGenerator) enrich(ctx context.Context, provider ai.Provider, in Input, content string) (articleMeta, error) {
	cctx, cancel := g.callCtx(ctx)
	defer cancel()

	reply, err := provider.Chat(cctx, enrichMessages(in, content))
	if err != nil {
		return articleMeta{}, err
	}
	return parseMeta(reply)
}

func articleMessages(in Input) []ai.Message {
	var b strings.Builder
	b.WriteString("Write a marketplace article about: ")
	b.WriteString(in.Prompt)
	if lines := in.ContextLines(); len(lines) > 0 {
		b.WriteString("\n\nRequirements:\n")
		for _, l := range lines {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}
	return []ai.Message{
		{Role: "system", Content: "You are an e-commerce copywriter. Answer with the article body in Markdown only."},
		{Role: "user", Content: b.String()},
	}
}

func enrichMessages(in Input, content string) []ai.Message {
	const maxExcerpt = 4000
	excerpt := content
	if r := []rune(excerpt); len(r) > maxExcerpt {
		excerpt = string(r[:maxExcerpt])
	}
	return []ai.Message{
		{Role: "system", Content: `Reply with one JSON object: {"title": string, "meta_description": string (max 160 chars), "tags": [string]}. No prose.`},
		{Role: "user", Content: "Keyword: " + in.Prompt + "\n\nArticle:\n" + excerpt},
	}
}

// parseMeta extracts the first JSON object from a model reply, tolerating
// code fences and surrounding text.
func parseMeta(reply string) (articleMeta, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return articleMeta{}, errors.New("no json object in reply")
	}
	var m articleMeta
	if err := json.Unmarshal([]byte(reply[start:end+1]), &m); err != nil {
		return articleMeta{}, err
	}
	m.Title = strings.TrimSpace(m.Title)
	m.MetaDescription = strings.TrimSpace(m.MetaDescription)
	if m.Title == "" && m.MetaDescription == "" && len(m.Tags) == 0 {
		return articleMeta{}, errors.New("empty metadata")
	}
	return m, nil
}
