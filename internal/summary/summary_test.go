package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Summarize(ctx context.Context, readme string) (Result, error) {
	args := m.Called(ctx, readme)
	return args.Get(0).(Result), args.Error(1)
}

type panickingProvider struct{}

func (panickingProvider) Name() string { return "panicky" }

func (panickingProvider) Summarize(context.Context, string) (Result, error) {
	panic("boom")
}

type sourceCounter map[string]int

func (s sourceCounter) RecordSummarySource(source string) { s[source]++ }

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &mockProvider{name: "first"}
	second := &mockProvider{name: "second"}
	first.On("Summarize", mock.Anything, "readme").Return(Result{}, errors.New("down"))
	second.On("Summarize", mock.Anything, "readme").Return(Result{Summary: "ok", CoolFacts: []string{"f"}, Success: true, Source: SourceGemini}, nil)

	counts := sourceCounter{}
	res := NewChain(nil, counts, first, second).Invoke(context.Background(), "readme")

	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, SourceGemini, res.Source)
	assert.Equal(t, 1, counts[SourceGemini])
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestChain_FallsBackAfterPanicAndError(t *testing.T) {
	failing := &mockProvider{name: "failing"}
	failing.On("Summarize", mock.Anything, mock.Anything).Return(Result{}, errors.New("quota"))

	res := NewChain(nil, nil, panickingProvider{}, failing).Invoke(context.Background(), "# Title\n\nA paragraph long enough to be used as summary.")
	assert.Equal(t, SourceFallback, res.Source)
	assert.True(t, res.Success)
	assert.Equal(t, "Title - A paragraph long enough to be used as summary.", res.Summary)
}

func TestChain_NoProviders(t *testing.T) {
	res := NewChain(nil, nil).Invoke(context.Background(), "")
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, defaultSummary, res.Summary)
	assert.Equal(t, []string{defaultFact}, res.CoolFacts)
}

func TestFallback(t *testing.T) {
	readme := strings.Join([]string{
		"# Awesome Project",
		"[![Build](https://img.shields.io/badge/build-passing.svg)](https://ci)",
		"![Coverage](https://img.shields.io/coverage.svg)",
		"",
		"An awesome project written in TypeScript and React for humans.",
		"",
		"## Installation",
		"```bash",
		"npm install awesome",
		"```",
		"## Usage",
		"```js",
		"awesome()",
		"```",
		"## License",
	}, "\n")

	res := Fallback(readme)
	assert.True(t, res.Success)
	assert.Equal(t, SourceFallback, res.Source)
	assert.Equal(t, "Awesome Project - An awesome project written in TypeScript and React for humans.", res.Summary)
	assert.Contains(t, res.CoolFacts, "Includes sections: Installation, Usage")
	assert.Contains(t, res.CoolFacts, "Uses technologies: react, typescript")
	assert.Contains(t, res.CoolFacts, "Includes 2 status badges for quality assurance")
	assert.Contains(t, res.CoolFacts, "Contains 2 code examples")
	assert.NotContains(t, res.CoolFacts, "Contains comprehensive documentation")
}

func TestFallback_LongContent(t *testing.T) {
	para := strings.Repeat("word ", 60)
	readme := "Intro line that is quite long indeed\n" + strings.Repeat(para+"\n", 5)

	res := Fallback(readme)
	assert.Equal(t, "Intro line that is quite long indeed", res.Summary)
	assert.Equal(t, "Contains comprehensive documentation", res.CoolFacts[0])
}

func TestFallback_TruncatesParagraph(t *testing.T) {
	long := strings.Repeat("x", 250)
	res := Fallback(long)
	assert.Equal(t, strings.Repeat("x", 200)+"...", res.Summary)
}

func TestFallback_SingleFenceNotCounted(t *testing.T) {
	res := Fallback("```\nunterminated")
	for _, f := range res.CoolFacts {
		assert.NotContains(t, f, "code examples")
	}
}

func TestFallback_TitleOnly(t *testing.T) {
	res := Fallback("# Tiny\n\nshort\n")
	assert.Equal(t, "Tiny", res.Summary)
	assert.Equal(t, []string{defaultFact}, res.CoolFacts)
}

func TestParseModelOutput(t *testing.T) {
	res := parseModelOutput(`{"summary":"S","cool_facts":["a","b"]}`, SourceOpenAI)
	assert.Equal(t, Result{Summary: "S", CoolFacts: []string{"a", "b"}, Success: true, Source: SourceOpenAI}, res)

	res = parseModelOutput(`{"cool_facts":"not a list"}`, SourceOpenAI)
	assert.Equal(t, noSummary, res.Summary)
	assert.Equal(t, []string{noFacts}, res.CoolFacts)

	long := strings.Repeat("y", 600)
	res = parseModelOutput(long, SourceGemini)
	assert.Equal(t, strings.Repeat("y", 500)+"...", res.Summary)
	assert.Equal(t, []string{unstructuredFact}, res.CoolFacts)
	assert.Equal(t, SourceGemini, res.Source)
}

func TestOpenAI_Summarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOpenAIModel, req.Model)
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 1000, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.True(t, strings.HasSuffix(req.Messages[1].Content, "..."))

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"summary\":\"A tool\",\"cool_facts\":[\"fast\"]}"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI("sk-test", OpenAIOptions{BaseURL: srv.URL})
	res, err := o.Summarize(context.Background(), strings.Repeat("r", 9000))
	require.NoError(t, err)
	assert.Equal(t, "A tool", res.Summary)
	assert.Equal(t, []string{"fast"}, res.CoolFacts)
	assert.Equal(t, SourceOpenAI, res.Source)
}

func TestOpenAI_Errors(t *testing.T) {
	t.Run("status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer srv.Close()
		_, err := NewOpenAI("k", OpenAIOptions{BaseURL: srv.URL}).Summarize(context.Background(), "x")
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()
		_, err := NewOpenAI("k", OpenAIOptions{BaseURL: srv.URL}).Summarize(context.Background(), "x")
		assert.ErrorContains(t, err, "no response")
	})

	t.Run("chain falls back", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`not json`))
		}))
		defer srv.Close()
		res := NewChain(nil, nil, NewOpenAI("k", OpenAIOptions{BaseURL: srv.URL})).Invoke(context.Background(), "")
		assert.Equal(t, SourceFallback, res.Source)
	})
}

func TestGemini_ResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"summary":`), genai.Text(`"x"}`)}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	assert.Equal(t, `{"summary":"x"}`, responseText(resp))
}

func TestNewGemini(t *testing.T) {
	g, err := NewGemini(context.Background(), "test-key", "")
	require.NoError(t, err)
	defer g.Close()
	assert.Equal(t, SourceGemini, g.Name())
	assert.Equal(t, DefaultGeminiModel, g.model)
}
