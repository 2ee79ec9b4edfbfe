package ring

import (
	"context"
	"sort"
)

type Metrics struct {
	Created             uint64
	Processed           uint64
	Rejected            map[string]uint64
	AnimationsTriggered uint64
	AnimationsDropped   uint64
	LogErrors           uint64
}

func (s *Service) Metrics() Metrics {
	m := Metrics{
		Created:             s.created.Load(),
		Processed:           s.processed.Load(),
		AnimationsTriggered: s.animFired.Load(),
		AnimationsDropped:   s.animMissed.Load(),
		LogErrors:           s.logErrors.Load(),
		Rejected:            map[string]uint64{},
	}
	s.rejMu.Lock()
	for k, v := range s.rejected {
		m.Rejected[k] = v
	}
	s.rejMu.Unlock()
	return m
}

// RejectedCodes returns the codes in m.Rejected in stable order.
func (m Metrics) RejectedCodes() []string {
	out := make([]string, 0, len(m.Rejected))
	for k := range m.Rejected {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Boxers counts stored records.
func (s *Service) Boxers(ctx context.Context) (int, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}
