package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/iron-birch/winnow/internal/audit"
	"github.com/iron-birch/winnow/internal/convo"
	"github.com/iron-birch/winnow/internal/ingest"
	"github.com/iron-birch/winnow/internal/llm"
	"github.com/iron-birch/winnow/internal/metrics"
	"github.com/iron-birch/winnow/internal/model"
	"github.com/iron-birch/winnow/internal/pipeline"
)

// Request outcomes, used as the metrics label and the audit row value.
const (
	outcomeOK         = "ok"
	outcomeNoMatch    = "no_match"
	outcomeTooLarge   = "too_large"
	outcomeBadRequest = "bad_request"
	outcomeError      = "error"
)

// Uploads are multipart-encoded, so the transport ceiling sits a little
// above the raw input ceiling.
const multipartSlack = 1 << 20

const noMatchText = "No log entries matched the query. " +
	"Try broadening the search terms, naming a different service, or checking the time range of the upload."

// Deps carries the collaborators behind the API handlers.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Reader   *ingest.Reader
	MaxBody  int64 // raw upload ceiling in bytes, 0 disables
	Store    *convo.Store
	LLM      *llm.Client
	Trail    *audit.Trail
}

// Handler serves the analyze API. The pipeline, ingest reader, and body
// ceiling are swappable so configuration reloads apply to the next request
// without dropping live conversations.
type Handler struct {
	pipe    atomic.Pointer[pipeline.Pipeline]
	reader  atomic.Pointer[ingest.Reader]
	maxBody atomic.Int64
	store   *convo.Store
	llm     *llm.Client
	trail   *audit.Trail
}

func NewHandler(d Deps) *Handler {
	h := &Handler{store: d.Store, llm: d.LLM, trail: d.Trail}
	h.Swap(d.Pipeline, d.Reader, d.MaxBody)
	return h
}

// Swap installs a rebuilt pipeline and reader. Requests already in flight
// finish on the instances they loaded.
func (h *Handler) Swap(p *pipeline.Pipeline, rd *ingest.Reader, maxBody int64) {
	h.pipe.Store(p)
	h.reader.Store(rd)
	h.maxBody.Store(maxBody)
}

// analyzeResponse mirrors the shape the frontends consume. The reduction
// figure is rendered as a percentage with one decimal, not a ratio.
type analyzeResponse struct {
	Query             string          `json:"query"`
	Response          string          `json:"response"`
	ConversationID    string          `json:"conversation_id,omitempty"`
	TotalRecords      int             `json:"total_logs_processed"`
	SurvivingRecords  int             `json:"surviving_records"`
	EliminatedRecords int             `json:"eliminated_records"`
	CostReduction     float64         `json:"cost_reduction_percentage"`
	ProcessingSummary string          `json:"processing_summary"`
	NoMatch           bool            `json:"no_match,omitempty"`
	MalformedRecords  int             `json:"malformed_records,omitempty"`
	LLMTokensUsed     int             `json:"llm_tokens_used"`
	LLMCost           float64         `json:"llm_cost"`
	Windows           []windowSummary `json:"windows,omitempty"`
}

type windowSummary struct {
	WindowID       string                 `json:"window_id"`
	CorrelationKey string                 `json:"correlation_key"`
	StartTime      *time.Time             `json:"start_time,omitempty"`
	EndTime        *time.Time             `json:"end_time,omitempty"`
	Services       map[string]int         `json:"services"`
	Severities     map[model.Severity]int `json:"severities"`
	TopTemplates   []templateCount        `json:"top_templates,omitempty"`
	Samples        []sampleRecord         `json:"samples,omitempty"`
	Headline       string                 `json:"headline"`
	Relevance      float64                `json:"relevance"`
	Importance     float64                `json:"importance"`
}

type templateCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

type sampleRecord struct {
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Service    string     `json:"service"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	TraceID    string     `json:"trace_id,omitempty"`
	StatusCode int        `json:"status_code,omitempty"`
}

type conversationResponse struct {
	ConversationID   string          `json:"conversation_id"`
	Query            string          `json:"query"`
	TotalRecords     int             `json:"total_logs_processed"`
	SurvivingRecords int             `json:"surviving_records"`
	CostReduction    float64         `json:"cost_reduction_percentage"`
	Transcript       []convo.Message `json:"transcript"`
}

// Analyze handles POST /api/v1/analyze. A request with a known
// conversation_id is a follow-up answered from the cached reduction; an
// unknown or absent id starts a fresh analysis from the uploaded file.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if mb := h.maxBody.Load(); mb > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, mb+multipartSlack)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxed *http.MaxBytesError
		if errors.As(err, &maxed) {
			h.rejectLimit(w, &model.LimitError{What: "bytes", Limit: maxed.Limit, Actual: maxed.Limit + 1}, "", start)
			return
		}
		h.reject(w, http.StatusBadRequest, "invalid multipart form: "+err.Error(), outcomeBadRequest, "", start)
		return
	}

	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		h.reject(w, http.StatusBadRequest, "query is required", outcomeBadRequest, "", start)
		return
	}

	if id := r.FormValue("conversation_id"); id != "" {
		if conv, ok := h.store.Get(id); ok {
			h.followUp(w, r, conv, query, start)
			return
		}
		// Unknown ids fall through to a fresh analysis when a file is attached.
	}
	h.fresh(w, r, query, start)
}

func (h *Handler) fresh(w http.ResponseWriter, r *http.Request, query string, start time.Time) {
	file, _, err := r.FormFile("file")
	if err != nil {
		h.reject(w, http.StatusBadRequest, "log file is required", outcomeBadRequest, query, start)
		return
	}
	defer file.Close()

	res, err := h.reader.Load().Read(file)
	if err != nil {
		var limit *model.LimitError
		if errors.As(err, &limit) {
			h.rejectLimit(w, limit, query, start)
			return
		}
		h.reject(w, http.StatusBadRequest, "could not read log file: "+err.Error(), outcomeBadRequest, query, start)
		return
	}

	rep, err := h.pipe.Load().Run(r.Context(), res.Records, query)
	if err != nil {
		var limit *model.LimitError
		if errors.As(err, &limit) {
			h.rejectLimit(w, limit, query, start)
			return
		}
		h.reject(w, http.StatusInternalServerError, "reduction failed: "+err.Error(), outcomeError, query, start)
		return
	}

	if rep.Empty() {
		h.finish(audit.Event{
			Time:          start,
			QueryHash:     audit.HashQuery(query),
			TotalRecords:  rep.TotalRecords,
			CostReduction: rep.CostReduction,
			Duration:      time.Since(start),
		}, outcomeNoMatch)
		resp := buildResponse("", query, rep, noMatchText, llm.Result{}, res.Malformed)
		resp.NoMatch = true
		respondJSON(w, http.StatusOK, resp)
		return
	}

	var usage llm.Result
	analysis := rep.ProcessingSummary
	if h.llm.Enabled() {
		usage, err = h.llm.Analyze(r.Context(), query, rep)
		if err != nil {
			h.reject(w, http.StatusBadGateway, "analysis failed: "+err.Error(), outcomeError, query, start)
			return
		}
		analysis = usage.Text
	}

	conv := h.store.Create(convo.NewID(), query, rep, analysis)
	h.finish(audit.Event{
		Time:           start,
		ConversationID: conv.ID,
		QueryHash:      audit.HashQuery(query),
		TotalRecords:   rep.TotalRecords,
		Surviving:      rep.SurvivingRecords,
		CostReduction:  rep.CostReduction,
		TokensUsed:     usage.TotalTokens,
		CostUSD:        usage.Cost,
		Duration:       time.Since(start),
	}, outcomeOK)
	respondJSON(w, http.StatusOK, buildResponse(conv.ID, query, rep, analysis, usage, res.Malformed))
}

func (h *Handler) followUp(w http.ResponseWriter, r *http.Request, conv convo.Conversation, question string, start time.Time) {
	if !h.llm.Enabled() {
		h.reject(w, http.StatusServiceUnavailable, "follow-up chat requires a configured analysis model", outcomeError, question, start)
		return
	}

	usage, err := h.llm.Chat(r.Context(), conv, question)
	if err != nil {
		h.reject(w, http.StatusBadGateway, "analysis failed: "+err.Error(), outcomeError, question, start)
		return
	}
	h.store.Append(conv.ID, question, usage.Text)

	rep := conv.Report
	h.finish(audit.Event{
		Time:           start,
		ConversationID: conv.ID,
		QueryHash:      audit.HashQuery(question),
		TotalRecords:   rep.TotalRecords,
		Surviving:      rep.SurvivingRecords,
		CostReduction:  rep.CostReduction,
		TokensUsed:     usage.TotalTokens,
		CostUSD:        usage.Cost,
		Duration:       time.Since(start),
	}, outcomeOK)

	// Summaries went out with the first response; follow-ups carry text only.
	respondJSON(w, http.StatusOK, analyzeResponse{
		Query:             question,
		Response:          usage.Text,
		ConversationID:    conv.ID,
		TotalRecords:      rep.TotalRecords,
		SurvivingRecords:  rep.SurvivingRecords,
		EliminatedRecords: rep.EliminatedRecords,
		CostReduction:     rep.ReductionPercent(),
		ProcessingSummary: rep.ProcessingSummary,
		LLMTokensUsed:     usage.TotalTokens,
		LLMCost:           usage.Cost,
	})
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		respondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	respondJSON(w, http.StatusOK, conversationResponse{
		ConversationID:   conv.ID,
		Query:            conv.Query,
		TotalRecords:     conv.Report.TotalRecords,
		SurvivingRecords: conv.Report.SurvivingRecords,
		CostReduction:    conv.Report.ReductionPercent(),
		Transcript:       conv.Transcript,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"service":       "winnow",
		"llm_enabled":   h.llm.Enabled(),
		"conversations": h.store.Len(),
	})
}

func (h *Handler) finish(e audit.Event, outcome string) {
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	e.Outcome = outcome
	h.trail.Record(e)
}

func (h *Handler) reject(w http.ResponseWriter, status int, msg, outcome, query string, start time.Time) {
	e := audit.Event{Time: start, Duration: time.Since(start)}
	if query != "" {
		e.QueryHash = audit.HashQuery(query)
	}
	h.finish(e, outcome)
	respondError(w, status, msg)
}

func (h *Handler) rejectLimit(w http.ResponseWriter, limit *model.LimitError, query string, start time.Time) {
	e := audit.Event{Time: start, Duration: time.Since(start)}
	if query != "" {
		e.QueryHash = audit.HashQuery(query)
	}
	h.finish(e, outcomeTooLarge)
	respondJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
		"error":  limit.Error(),
		"what":   limit.What,
		"limit":  limit.Limit,
		"actual": limit.Actual,
	})
}

func buildResponse(convID, query string, rep model.Report, analysis string, usage llm.Result, malformed int) analyzeResponse {
	return analyzeResponse{
		Query:             query,
		Response:          analysis,
		ConversationID:    convID,
		TotalRecords:      rep.TotalRecords,
		SurvivingRecords:  rep.SurvivingRecords,
		EliminatedRecords: rep.EliminatedRecords,
		CostReduction:     rep.ReductionPercent(),
		ProcessingSummary: rep.ProcessingSummary,
		MalformedRecords:  malformed,
		LLMTokensUsed:     usage.TotalTokens,
		LLMCost:           usage.Cost,
		Windows:           toWindows(rep.Summaries),
	}
}

func toWindows(sws []model.WindowSummary) []windowSummary {
	out := make([]windowSummary, 0, len(sws))
	for _, sw := range sws {
		out = append(out, windowSummary{
			WindowID:       sw.WindowID,
			CorrelationKey: sw.CorrelationKey,
			StartTime:      timePtr(sw.StartTime),
			EndTime:        timePtr(sw.EndTime),
			Services:       sw.Services,
			Severities:     sw.Severities,
			TopTemplates:   toTemplates(sw.TopTemplates),
			Samples:        toSamples(sw.Samples),
			Headline:       sw.Headline,
			Relevance:      sw.Relevance,
			Importance:     sw.Importance,
		})
	}
	return out
}

func toTemplates(ts []model.Template) []templateCount {
	out := make([]templateCount, 0, len(ts))
	for _, t := range ts {
		out = append(out, templateCount{Pattern: t.Pattern, Count: t.Count})
	}
	return out
}

func toSamples(recs []model.LogRecord) []sampleRecord {
	out := make([]sampleRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, sampleRecord{
			Timestamp:  timePtr(rec.Timestamp),
			Service:    rec.Service,
			Severity:   rec.Severity.String(),
			Message:    rec.Message,
			TraceID:    rec.TraceID,
			StatusCode: rec.StatusCode,
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
