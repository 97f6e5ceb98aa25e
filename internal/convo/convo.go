// Package convo keeps per-conversation analysis state between requests so
// a follow-up question reuses the first reduction instead of re-running the
// pipeline. The store is bounded; the least recently used conversation is
// evicted when the cap is reached.
package convo

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/iron-birch/winnow/internal/metrics"
	"github.com/iron-birch/winnow/internal/model"
)

// maxTranscript bounds the chat transcript per conversation. Oldest
// messages are trimmed first.
const maxTranscript = 20

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Conversation is the cached state of one analysis session. The first
// analyze call fills Report and InitialAnalysis; follow-ups only append to
// the transcript.
type Conversation struct {
	ID              string
	Query           string
	Report          model.Report
	InitialAnalysis string
	Transcript      []Message
}

// Store is a bounded conversation cache. Safe for concurrent use; all
// conversation mutation goes through the store lock.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Conversation]
}

func NewStore(capacity int) (*Store, error) {
	cache, err := lru.New[string, *Conversation](capacity)
	if err != nil {
		return nil, fmt.Errorf("convo: %w", err)
	}
	return &Store{cache: cache}, nil
}

// NewID returns a fresh 8-character conversation id.
func NewID() string {
	return uuid.NewString()[:8]
}

// Create caches the first analysis of a conversation, including the opening
// exchange in the transcript. A random id is assigned when id is empty.
func (s *Store) Create(id, query string, report model.Report, analysis string) Conversation {
	if id == "" {
		id = NewID()
	}
	c := &Conversation{
		ID:              id,
		Query:           query,
		Report:          report,
		InitialAnalysis: analysis,
		Transcript: []Message{
			{Role: "user", Content: query},
			{Role: "assistant", Content: analysis},
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(id, c)
	metrics.ConversationsLive.Set(float64(s.cache.Len()))
	return c.snapshot()
}

// Append records one question and answer exchange. Returns false when the
// conversation is unknown, either never created or already evicted.
func (s *Store) Append(id, question, answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache.Get(id)
	if !ok {
		return false
	}
	c.Transcript = append(c.Transcript,
		Message{Role: "user", Content: question},
		Message{Role: "assistant", Content: answer},
	)
	if len(c.Transcript) > maxTranscript {
		c.Transcript = append([]Message(nil), c.Transcript[len(c.Transcript)-maxTranscript:]...)
	}
	return true
}

// Get returns a copy of the conversation that is safe to read while other
// requests append to it.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache.Get(id)
	if !ok {
		return Conversation{}, false
	}
	return c.snapshot(), true
}

// Len reports the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (c *Conversation) snapshot() Conversation {
	out := *c
	out.Transcript = append([]Message(nil), c.Transcript...)
	return out
}
