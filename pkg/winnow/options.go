package winnow

import "github.com/iron-birch/winnow/internal/config"

type options struct {
	cfg config.PipelineConfig
}

// Option configures a Winnow instance.
type Option func(*options)

// WithBucketSeconds sets the width of the time buckets that group records
// without a trace id. Default: 30.
func WithBucketSeconds(s int) Option {
	return func(o *options) { o.cfg.BucketSeconds = s }
}

// WithTopK caps the number of surviving windows per request. Default: 10.
func WithTopK(k int) Option {
	return func(o *options) { o.cfg.TopK = k }
}

// WithWorkers sets the shard count for normalization and window scoring.
// Zero uses one shard per CPU. Default: 0.
func WithWorkers(n int) Option {
	return func(o *options) { o.cfg.Workers = n }
}

// WithMaxRecords sets the hard ceiling on records per batch. Batches over
// the ceiling are rejected with a LimitError. Default: 100000.
func WithMaxRecords(n int) Option {
	return func(o *options) { o.cfg.MaxRecords = n }
}

// WithMaxInputBytes sets the hard ceiling on input size, measured after
// decompression. Default: 64 MiB.
func WithMaxInputBytes(n int64) Option {
	return func(o *options) { o.cfg.MaxInputBytes = n }
}

// WithWeights sets the importance blend: alpha scales relevance, beta
// severity, gamma frequency. New rejects weights unless
// alpha >= beta >= gamma with alpha positive.
func WithWeights(alpha, beta, gamma float64) Option {
	return func(o *options) {
		o.cfg.Alpha = alpha
		o.cfg.Beta = beta
		o.cfg.Gamma = gamma
	}
}

// WithHotKeywords replaces the critical-keyword list consulted by signal
// detection. A record containing one is kept hot regardless of severity.
func WithHotKeywords(words ...string) Option {
	return func(o *options) { o.cfg.HotKeywords = words }
}

// WithStopwords replaces the stopword list applied to query parsing.
func WithStopwords(words ...string) Option {
	return func(o *options) { o.cfg.Stopwords = words }
}

// WithServiceSynonyms replaces the query-token to service-name synonym
// table used for relevance matching.
func WithServiceSynonyms(synonyms map[string][]string) Option {
	return func(o *options) { o.cfg.ServiceSynonyms = synonyms }
}

func defaultOptions() options {
	return options{cfg: config.Default().Pipeline}
}
