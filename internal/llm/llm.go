// Package llm talks to the analysis model: a first-pass incident analysis
// over a reduced report, then follow-up chat over the cached context so the
// pipeline never re-runs for the same conversation.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkoukk/tiktoken-go"

	"github.com/iron-birch/winnow/internal/config"
	"github.com/iron-birch/winnow/internal/convo"
	"github.com/iron-birch/winnow/internal/metrics"
	"github.com/iron-birch/winnow/internal/model"
)

const systemPrompt = `You are an expert log analysis assistant helping developers debug production incidents.

Format answers as markdown: open with a short summary of the most critical findings, group details by severity, use bold for key terms and code formatting for technical values, and close with concrete next steps. Reference trace ids and status codes from the data when they support a finding. Stay professional and focus on what the reader needs to fix the issue quickly.`

// Completion ceilings. Follow-ups get a smaller budget than the first
// analysis.
const (
	maxAnalyzeTokens = 1500
	maxChatTokens    = 800
)

// Prices in USD per million tokens. Unknown models bill at the
// gpt-4o-mini rate unless the config overrides both numbers.
var pricing = map[string]struct{ in, out float64 }{
	"gpt-4o-mini":  {0.15, 0.60},
	"gpt-4o":       {2.50, 10.00},
	"gpt-4.1-mini": {0.40, 1.60},
}

// Result is one model response with its usage accounting.
type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Cost         float64 // USD
}

// Client wraps the chat-completions API. Safe for concurrent use.
type Client struct {
	api openai.Client
	cfg config.LLMConfig
}

// New builds the analysis client. The base URL override points the client
// at a proxy or a test server.
func New(cfg config.LLMConfig) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{api: openai.NewClient(opts...), cfg: cfg}
}

// Enabled reports whether an API key is configured. A disabled client still
// lets the reduction run; callers skip the analysis call.
func (c *Client) Enabled() bool { return c.cfg.APIKey != "" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Analyze asks the model for a first-pass analysis of the reduced report.
// The prompt is bounded by the estimated token count before sending.
func (c *Client) Analyze(ctx context.Context, query string, report model.Report) (Result, error) {
	prompt := fmt.Sprintf(
		"**User Query:** %s\n\n**Filtered Log Data:**\n%s\nPlease analyze these logs and help me understand what is happening with my system.",
		query, logContext(report),
	)
	if c.cfg.MaxContextTokens > 0 {
		if est := EstimateTokens(prompt); est > c.cfg.MaxContextTokens {
			return Result{}, fmt.Errorf("llm: prompt too large: estimated %d tokens (limit %d)", est, c.cfg.MaxContextTokens)
		}
	}

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(prompt),
	}
	return c.complete(ctx, msgs, maxAnalyzeTokens)
}

// Chat answers a follow-up question from the conversation's cached analysis
// and transcript. The logs themselves are never resent.
func (c *Client) Chat(ctx context.Context, conv convo.Conversation, question string) (Result, error) {
	cached := fmt.Sprintf(
		"**Previous Log Analysis:**\n%s\n\n**Log Summary:** %s\n\nYou have already analyzed the user's logs. Answer follow-up questions from that analysis instead of re-analyzing; reference the earlier findings.",
		conv.InitialAnalysis, conv.Report.ProcessingSummary,
	)

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.AssistantMessage(cached),
	}
	for _, m := range conv.Transcript {
		switch m.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(question))
	return c.complete(ctx, msgs, maxChatTokens)
}

// Ping sends a minimal completion to verify the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
		MaxCompletionTokens: openai.Int(5),
	})
	if err != nil {
		return fmt.Errorf("llm: ping: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, msgs []openai.ChatCompletionMessageParamUnion, maxTokens int) (Result, error) {
	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.cfg.Model,
		Messages:            msgs,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Temperature:         openai.Float(0.1),
	})
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "error").Inc()
		return Result{}, fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "error").Inc()
		return Result{}, fmt.Errorf("llm: empty response from %s", c.cfg.Model)
	}

	res := Result{
		Text:         resp.Choices[0].Message.Content,
		Model:        c.cfg.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	res.Cost = c.cost(res.InputTokens, res.OutputTokens)

	metrics.LLMRequestsTotal.WithLabelValues(c.cfg.Model, "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(c.cfg.Model, "input").Add(float64(res.InputTokens))
	metrics.LLMTokensUsed.WithLabelValues(c.cfg.Model, "output").Add(float64(res.OutputTokens))
	metrics.LLMCostUSD.WithLabelValues(c.cfg.Model).Add(res.Cost)

	slog.Debug("model response",
		"model", c.cfg.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", res.InputTokens,
		"completion_tokens", res.OutputTokens,
		"cost_usd", res.Cost,
	)
	return res, nil
}

func (c *Client) cost(in, out int) float64 {
	inRate, outRate := c.cfg.InputPricePerM, c.cfg.OutputPricePerM
	if inRate == 0 && outRate == 0 {
		p, ok := pricing[c.cfg.Model]
		if !ok {
			p = pricing["gpt-4o-mini"]
		}
		inRate, outRate = p.in, p.out
	}
	return float64(in)/1e6*inRate + float64(out)/1e6*outRate
}

// logContext renders the reduced windows for the prompt: one block per
// window with its time range, breakdowns, top patterns, and samples. Maps
// print in sorted order so the same report always yields the same prompt.
func logContext(report model.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Processing Summary:** %s\n\n", report.ProcessingSummary)

	for i, w := range report.Summaries {
		fmt.Fprintf(&b, "**Window %d: %s**\n", i+1, w.Headline)
		if !w.StartTime.IsZero() {
			fmt.Fprintf(&b, "  Time: %s to %s\n",
				w.StartTime.UTC().Format(time.RFC3339), w.EndTime.UTC().Format(time.RFC3339))
		}
		if len(w.Services) > 0 {
			fmt.Fprintf(&b, "  Services: %s\n", formatServices(w.Services))
		}
		if len(w.Severities) > 0 {
			fmt.Fprintf(&b, "  Severities: %s\n", formatSeverities(w.Severities))
		}
		if len(w.TopTemplates) > 0 {
			b.WriteString("  Top patterns:\n")
			for _, tpl := range w.TopTemplates {
				fmt.Fprintf(&b, "    %dx %s\n", tpl.Count, tpl.Pattern)
			}
		}
		for j, rec := range w.Samples {
			b.WriteString(sampleLine(j+1, rec))
			fmt.Fprintf(&b, "    Message: %s\n", rec.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sampleLine(n int, rec model.LogRecord) string {
	var parts []string
	if rec.Service != "" && rec.Service != "unknown" {
		parts = append(parts, "Service: "+rec.Service)
	}
	parts = append(parts, "Severity: "+rec.Severity.String())
	if rec.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("Status: %d", rec.StatusCode))
	}
	if rec.TraceID != "" {
		trace := rec.TraceID
		if len(trace) > 16 {
			trace = trace[:16] + "..."
		}
		parts = append(parts, "Trace: "+trace)
	}
	return fmt.Sprintf("  Log %d: %s\n", n, strings.Join(parts, " | "))
}

func formatServices(m map[string]int) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, m[name]))
	}
	return strings.Join(parts, ", ")
}

func formatSeverities(m map[model.Severity]int) string {
	sevs := make([]model.Severity, 0, len(m))
	for sev := range m {
		sevs = append(sevs, sev)
	}
	sort.Slice(sevs, func(i, j int) bool { return sevs[i] > sevs[j] })
	parts := make([]string, 0, len(sevs))
	for _, sev := range sevs {
		parts = append(parts, fmt.Sprintf("%s (%d)", sev, m[sev]))
	}
	return strings.Join(parts, ", ")
}

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// loadTokenizer fetches the cl100k vocabulary on first use. It needs the
// network or a warm cache; when neither is available the heuristic serves.
func loadTokenizer() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Debug("tokenizer unavailable, using heuristic estimates", "error", err)
		return
	}
	tokenizer = enc
}

// EstimateTokens counts prompt tokens with the cl100k encoding when its
// vocabulary is available, falling back to a heuristic bound otherwise.
func EstimateTokens(s string) int {
	tokenizerOnce.Do(loadTokenizer)
	if tokenizer != nil {
		return len(tokenizer.EncodeOrdinary(s))
	}
	return heuristicTokens(s)
}

// heuristicTokens is the larger of word count times 4/3 and byte count
// over 4. Overestimates slightly on prose, the safe direction for a
// pre-send bound.
func heuristicTokens(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	byWords := (len(strings.Fields(s))*4 + 2) / 3
	byBytes := len(s) / 4
	if byWords > byBytes {
		return byWords
	}
	return byBytes
}
