package debate

import (
	"sync"

	"inquest/pkg/proto"
)

// CardStore is the append-only, size-bounded evidence store for one debate
// session. Sequence numbers are monotone across the session even as old
// cards fall off the ring, so round boundaries stay valid after eviction.
type CardStore struct {
	mu      sync.Mutex
	cards   []proto.EvidenceCard
	cap     int
	nextSeq int
}

// NewCardStore creates a store retaining at most capacity cards.
func NewCardStore(capacity int) *CardStore {
	if capacity < 1 {
		capacity = 1
	}
	return &CardStore{cap: capacity}
}

// Append assigns the next sequence number, stores the card, and evicts the
// oldest card when over capacity. The stored card is returned.
func (s *CardStore) Append(card proto.EvidenceCard) proto.EvidenceCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	card.Seq = s.nextSeq
	s.nextSeq++
	s.cards = append(s.cards, card)
	if len(s.cards) > s.cap {
		s.cards = s.cards[len(s.cards)-s.cap:]
	}
	return card
}

// All returns a copy of the retained cards, oldest first.
func (s *CardStore) All() []proto.EvidenceCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.EvidenceCard, len(s.cards))
	copy(out, s.cards)
	return out
}

// Since returns the retained cards with Seq >= seq, oldest first. The round
// boundary recorded at RoundStart goes here.
func (s *CardStore) Since(seq int) []proto.EvidenceCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []proto.EvidenceCard
	for _, card := range s.cards {
		if card.Seq >= seq {
			out = append(out, card)
		}
	}
	return out
}

// Latest returns the most recent card from the named worker.
func (s *CardStore) Latest(worker string) (proto.EvidenceCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.cards) - 1; i >= 0; i-- {
		if s.cards[i].Worker == worker {
			return s.cards[i], true
		}
	}
	return proto.EvidenceCard{}, false
}

// Len reports how many cards are currently retained.
func (s *CardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// NextSeq returns the sequence number the next appended card will get.
func (s *CardStore) NextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}
