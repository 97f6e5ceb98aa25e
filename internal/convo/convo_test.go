package convo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/iron-birch/winnow/internal/model"
)

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := NewStore(capacity)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestCreateAssignsID(t *testing.T) {
	s := newTestStore(t, 4)

	c := s.Create("", "why is cart failing", model.Report{TotalRecords: 10}, "analysis text")
	if len(c.ID) != 8 {
		t.Errorf("generated id %q, want 8 characters", c.ID)
	}

	c2 := s.Create("fixed123", "q", model.Report{}, "a")
	if c2.ID != "fixed123" {
		t.Errorf("id = %q, want fixed123", c2.ID)
	}
}

func TestCreateSeedsTranscript(t *testing.T) {
	s := newTestStore(t, 4)

	c := s.Create("", "what broke", model.Report{}, "the cart service broke")
	if len(c.Transcript) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(c.Transcript))
	}
	if c.Transcript[0].Role != "user" || c.Transcript[0].Content != "what broke" {
		t.Errorf("first message = %+v", c.Transcript[0])
	}
	if c.Transcript[1].Role != "assistant" || c.Transcript[1].Content != "the cart service broke" {
		t.Errorf("second message = %+v", c.Transcript[1])
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s := newTestStore(t, 4)
	c := s.Create("", "q", model.Report{SurvivingRecords: 5}, "a")

	snap, ok := s.Get(c.ID)
	if !ok {
		t.Fatal("conversation not found")
	}
	if snap.Report.SurvivingRecords != 5 {
		t.Errorf("Report.SurvivingRecords = %d, want 5", snap.Report.SurvivingRecords)
	}

	// Mutating the snapshot must not leak into the store.
	snap.Transcript[0].Content = "tampered"
	again, _ := s.Get(c.ID)
	if again.Transcript[0].Content != "q" {
		t.Errorf("store transcript changed to %q", again.Transcript[0].Content)
	}
}

func TestAppendTrimsTranscript(t *testing.T) {
	s := newTestStore(t, 4)
	c := s.Create("", "first question", model.Report{}, "first answer")

	for i := 0; i < 15; i++ {
		if !s.Append(c.ID, fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i)) {
			t.Fatalf("Append %d failed", i)
		}
	}

	snap, _ := s.Get(c.ID)
	if len(snap.Transcript) != maxTranscript {
		t.Fatalf("transcript length = %d, want %d", len(snap.Transcript), maxTranscript)
	}
	// 2 seed + 30 appended = 32 messages; the first 12 are trimmed away.
	if snap.Transcript[0].Content != "question 5" {
		t.Errorf("oldest surviving message = %q, want question 5", snap.Transcript[0].Content)
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Content != "answer 14" {
		t.Errorf("newest message = %q, want answer 14", last.Content)
	}
}

func TestAppendUnknownConversation(t *testing.T) {
	s := newTestStore(t, 4)
	if s.Append("missing1", "q", "a") {
		t.Error("Append to unknown conversation returned true")
	}
}

func TestEvictionBoundsStore(t *testing.T) {
	s := newTestStore(t, 2)

	first := s.Create("", "q1", model.Report{}, "a1")
	s.Create("", "q2", model.Report{}, "a2")
	s.Create("", "q3", model.Report{}, "a3")

	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
	if _, ok := s.Get(first.ID); ok {
		t.Error("oldest conversation should have been evicted")
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t, 4)
	c := s.Create("", "q", model.Report{}, "a")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(c.ID, "follow-up", "reply")
		}()
	}
	wg.Wait()

	snap, _ := s.Get(c.ID)
	if len(snap.Transcript) != maxTranscript {
		t.Errorf("transcript length = %d, want %d", len(snap.Transcript), maxTranscript)
	}
}
