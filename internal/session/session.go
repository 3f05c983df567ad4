package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CountRecord is one observed quantity for a product. Counted separates
// "present with zero" from "not yet examined".
type CountRecord struct {
	CountedQty decimal.Decimal
	Counted    bool
	RecordedAt time.Time
}

// Session is the unit of local counting work.
type Session struct {
	ID        string
	CreatedAt time.Time
	Counts    map[string]CountRecord
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Counts:    make(map[string]CountRecord, len(s.Counts)),
	}
	for title, rec := range s.Counts {
		out.Counts[title] = rec
	}
	return out
}

// Record returns the count for title, if any.
func (s *Session) Record(title string) (CountRecord, bool) {
	if s == nil {
		return CountRecord{}, false
	}
	rec, ok := s.Counts[title]
	return rec, ok
}

// Counted returns the titles with Counted set, sorted.
func (s *Session) Counted() []string {
	if s == nil {
		return nil
	}
	titles := make([]string, 0, len(s.Counts))
	for title, rec := range s.Counts {
		if rec.Counted {
			titles = append(titles, title)
		}
	}
	sort.Strings(titles)
	return titles
}

// Persisted layout. Field names are part of the on-disk format and must stay
// readable by older builds.
type sessionLayout struct {
	ID        string                  `json:"id"`
	CreatedAt string                  `json:"createdAt"`
	Counts    map[string]recordLayout `json:"counts"`
}

type recordLayout struct {
	CountedQty json.Number `json:"countedQty"`
	Counted    bool        `json:"counted"`
	TS         string      `json:"ts"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func marshalSession(s *Session) ([]byte, error) {
	layout := sessionLayout{
		ID:        s.ID,
		CreatedAt: formatTime(s.CreatedAt),
		Counts:    make(map[string]recordLayout, len(s.Counts)),
	}
	for title, rec := range s.Counts {
		layout.Counts[title] = recordLayout{
			CountedQty: json.Number(rec.CountedQty.String()),
			Counted:    rec.Counted,
			TS:         formatTime(rec.RecordedAt),
		}
	}
	return json.Marshal(layout)
}

// unmarshalSession decodes a persisted session. A record missing its id or
// counts map is malformed; individual unreadable counts are dropped.
func unmarshalSession(data []byte) (*Session, error) {
	var layout sessionLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if layout.ID == "" {
		return nil, fmt.Errorf("decode session: missing id")
	}
	if layout.Counts == nil {
		return nil, fmt.Errorf("decode session: missing counts")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, layout.CreatedAt)
	if err != nil {
		slog.Warn("session createdAt unreadable", "session", layout.ID, "value", layout.CreatedAt)
		createdAt = time.Time{}
	}

	s := &Session{
		ID:        layout.ID,
		CreatedAt: createdAt,
		Counts:    make(map[string]CountRecord, len(layout.Counts)),
	}
	for title, rec := range layout.Counts {
		qty, err := decimal.NewFromString(rec.CountedQty.String())
		if err != nil || qty.IsNegative() {
			slog.Warn("dropping unreadable count", "session", layout.ID, "title", title, "value", rec.CountedQty)
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, rec.TS)
		s.Counts[title] = CountRecord{CountedQty: qty, Counted: rec.Counted, RecordedAt: ts}
	}
	return s, nil
}
