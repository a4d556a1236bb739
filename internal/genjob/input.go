package genjob

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxPromptRunes   = 4000
	maxContextFields = 32
	maxContextValue  = 1000
)

// Input is the immutable request payload stored on the job.
type Input struct {
	Kind    Kind              `json:"kind,omitempty"`
	Prompt  string            `json:"prompt"`
	Keyword string            `json:"keyword,omitempty"`
	Context map[string]string `json:"context,omitempty"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// image only, e.g. "1024x1024"
	Size string `json:"size,omitempty"`
}

// Normalize validates in and returns the canonical form that gets persisted.
// keyword is accepted as an alias for prompt.
func (in Input) Normalize() (Input, error) {
	out := in
	out.Prompt = strings.TrimSpace(in.Prompt)
	out.Keyword = strings.TrimSpace(in.Keyword)
	if out.Prompt == "" {
		out.Prompt = out.Keyword
	}
	if out.Prompt == "" {
		return Input{}, invalid("prompt is required")
	}
	if utf8.RuneCountInString(out.Prompt) > maxPromptRunes {
		return Input{}, invalid("prompt longer than %d characters", maxPromptRunes)
	}

	out.Kind = Kind(strings.ToLower(strings.TrimSpace(string(in.Kind))))
	if out.Kind == "" {
		out.Kind = KindArticle
	}
	if out.Kind != KindArticle && out.Kind != KindImage {
		return Input{}, invalid("unsupported kind %q", in.Kind)
	}

	if len(in.Context) > maxContextFields {
		return Input{}, invalid("at most %d context fields", maxContextFields)
	}
	if len(in.Context) > 0 {
		out.Context = make(map[string]string, len(in.Context))
		for k, v := range in.Context {
			k = strings.ToLower(strings.TrimSpace(k))
			v = strings.TrimSpace(v)
			if k == "" || v == "" {
				continue
			}
			if utf8.RuneCountInString(v) > maxContextValue {
				return Input{}, invalid("context %q longer than %d characters", k, maxContextValue)
			}
			out.Context[k] = v
		}
	}

	out.Provider = strings.ToLower(strings.TrimSpace(in.Provider))
	out.Model = strings.TrimSpace(in.Model)
	out.Size = strings.TrimSpace(in.Size)
	if out.Size != "" && out.Kind != KindImage {
		return Input{}, invalid("size only applies to image jobs")
	}
	return out, nil
}

// ContextLines renders the context map as sorted "key: value" lines.
func (in Input) ContextLines() []string {
	keys := make([]string, 0, len(in.Context))
	for k := range in.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+in.Context[k])
	}
	return out
}

func decodeInput(raw []byte) (Input, error) {
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return Input{}, err
	}
	return in, nil
}
