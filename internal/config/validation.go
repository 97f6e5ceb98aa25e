package config

import "fmt"

// ValidationError is one rejected configuration field. Validation happens
// at construction, before any record is processed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks the pipeline knobs and returns all violations, not just
// the first. The engine refuses construction while this is non-empty.
func (p *PipelineConfig) Validate() []error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if p.BucketSeconds < 1 {
		bad("pipeline.bucket_seconds", "must be at least 1, got %d", p.BucketSeconds)
	}
	if p.TopK < 1 {
		bad("pipeline.top_k", "must be at least 1, got %d", p.TopK)
	}
	if p.MaxTemplatesPerWindow < 1 {
		bad("pipeline.max_templates_per_window", "must be at least 1, got %d", p.MaxTemplatesPerWindow)
	}
	if p.MaxSamplesPerWindow < 0 {
		bad("pipeline.max_samples_per_window", "must not be negative, got %d", p.MaxSamplesPerWindow)
	}
	if p.MaxMessageChars < 1 {
		bad("pipeline.max_message_chars", "must be at least 1, got %d", p.MaxMessageChars)
	}
	if p.MaxRecords < 1 {
		bad("pipeline.max_records", "must be at least 1, got %d", p.MaxRecords)
	}
	if p.MaxInputBytes < 1 {
		bad("pipeline.max_input_bytes", "must be at least 1, got %d", p.MaxInputBytes)
	}
	if p.Workers < 0 {
		bad("pipeline.workers", "must not be negative, got %d", p.Workers)
	}

	if p.Alpha < 0 || p.Beta < 0 || p.Gamma < 0 {
		bad("pipeline.alpha", "importance weights must not be negative (alpha=%v beta=%v gamma=%v)", p.Alpha, p.Beta, p.Gamma)
	} else {
		if p.Alpha == 0 {
			bad("pipeline.alpha", "must be positive so relevance participates in ranking")
		}
		if p.Alpha < p.Beta || p.Beta < p.Gamma {
			bad("pipeline.alpha", "weights must satisfy alpha >= beta >= gamma, got %v/%v/%v", p.Alpha, p.Beta, p.Gamma)
		}
	}

	if p.ServiceWeight <= 0 {
		bad("pipeline.service_weight", "must be positive, got %v", p.ServiceWeight)
	}
	if p.PhraseWeight < 0 || p.KeywordWeight < 0 || p.KeywordCap < 0 {
		bad("pipeline.phrase_weight", "relevance weights must not be negative")
	}
	if p.ServiceWeight < p.PhraseWeight || p.PhraseWeight < p.KeywordWeight {
		bad("pipeline.service_weight", "weights must satisfy service >= phrase >= keyword, got %v/%v/%v",
			p.ServiceWeight, p.PhraseWeight, p.KeywordWeight)
	}

	return errs
}

// Validate checks every section and returns all violations, so a
// misconfigured deployment is fixable in one pass.
func (c *Config) Validate() []error {
	errs := c.Pipeline.Validate()
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Addr == "" {
		bad("server.addr", "must not be empty")
	}
	if c.Server.MaxConversations < 1 {
		bad("server.max_conversations", "must be at least 1, got %d", c.Server.MaxConversations)
	}
	for _, f := range []struct {
		name string
		val  int64
	}{
		{"server.read_timeout", int64(c.Server.ReadTimeout)},
		{"server.write_timeout", int64(c.Server.WriteTimeout)},
		{"server.idle_timeout", int64(c.Server.IdleTimeout)},
		{"server.shutdown_timeout", int64(c.Server.ShutdownTimeout)},
	} {
		if f.val <= 0 {
			bad(f.name, "must be positive")
		}
	}

	if c.LLM.MaxContextTokens < 1 {
		bad("llm.max_context_tokens", "must be at least 1, got %d", c.LLM.MaxContextTokens)
	}
	if c.LLM.InputPricePerM < 0 || c.LLM.OutputPricePerM < 0 {
		bad("llm.input_price_per_m", "prices must not be negative")
	}
	if c.LLM.APIKey != "" && c.LLM.Model == "" {
		bad("llm.model", "must not be empty when an API key is set")
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		bad("audit.path", "must not be empty when audit is enabled")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		bad("logging.format", "must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return errs
}
