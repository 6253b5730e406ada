package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/google/uuid"
)

// Memory is a map-backed Store with per-meter locking. It backs the service
// tests and the STORE_BACKEND=memory dev mode; Postgres is the production
// backend.
type Memory struct {
	mu         sync.RWMutex
	meters     map[uuid.UUID]*meterEntry
	codeIndex  map[string]uuid.UUID
	tokens     map[string]*db.Token
	tokenMu    sync.Mutex
	topups     []db.Topup
	topupCodes map[string]struct{}
	readings   []db.Reading
	alerts     []db.Alert
	notices    []db.Notification
}

type meterEntry struct {
	mu    sync.Mutex
	meter db.Meter
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		meters:     make(map[uuid.UUID]*meterEntry),
		codeIndex:  make(map[string]uuid.UUID),
		tokens:     make(map[string]*db.Token),
		topupCodes: make(map[string]struct{}),
	}
}

func (s *Memory) CreateMeter(_ context.Context, m *db.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codeIndex[m.MeterCode]; ok {
		return ErrMeterExists
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.meters[m.ID] = &meterEntry{meter: *m}
	s.codeIndex[m.MeterCode] = m.ID
	return nil
}

func (s *Memory) entry(id uuid.UUID) (*meterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.meters[id]
	if !ok {
		return nil, ErrMeterNotFound
	}
	return e, nil
}

func (s *Memory) GetMeter(_ context.Context, id uuid.UUID) (*db.Meter, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.meter
	return &m, nil
}

func (s *Memory) GetMeterByCode(ctx context.Context, code string) (*db.Meter, error) {
	s.mu.RLock()
	id, ok := s.codeIndex[code]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMeterNotFound
	}
	return s.GetMeter(ctx, id)
}

func (s *Memory) ListMeters(_ context.Context) ([]db.Meter, error) {
	s.mu.RLock()
	entries := make([]*meterEntry, 0, len(s.meters))
	for _, e := range s.meters {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	meters := make([]db.Meter, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		meters = append(meters, e.meter)
		e.mu.Unlock()
	}
	sort.Slice(meters, func(i, j int) bool {
		return meters[i].CreatedAt.After(meters[j].CreatedAt)
	})
	return meters, nil
}

func (s *Memory) ApplyMeter(_ context.Context, id uuid.UUID, mutate func(*db.Meter) error) (*db.Meter, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.meter
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.Version = e.meter.Version + 1
	e.meter = next
	m := next
	return &m, nil
}

func (s *Memory) PurchaseTopup(_ context.Context, id uuid.UUID, mutate func(*db.Meter) (*db.Topup, error)) (*db.Meter, *db.Topup, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 0; attempt < MaxMintAttempts; attempt++ {
		next := e.meter
		topup, err := mutate(&next)
		if err != nil {
			return nil, nil, err
		}

		s.mu.Lock()
		if _, taken := s.topupCodes[topup.TokenCode]; taken {
			s.mu.Unlock()
			continue
		}
		if topup.ID == uuid.Nil {
			topup.ID = uuid.New()
		}
		if topup.CreatedAt.IsZero() {
			topup.CreatedAt = time.Now()
		}
		s.topupCodes[topup.TokenCode] = struct{}{}
		s.topups = append(s.topups, *topup)
		s.mu.Unlock()

		next.Version = e.meter.Version + 1
		e.meter = next
		m := next
		return &m, topup, nil
	}
	return nil, nil, ErrDuplicateCode
}

func (s *Memory) CreateToken(_ context.Context, t *db.Token) error {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if _, ok := s.tokens[t.TokenCode]; ok {
		return ErrDuplicateCode
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	stored := *t
	s.tokens[t.TokenCode] = &stored
	return nil
}

func (s *Memory) GetToken(_ context.Context, code string) (*db.Token, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	t, ok := s.tokens[code]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Memory) RedeemToken(_ context.Context, code string, meterID uuid.UUID, at time.Time) (*db.Token, *db.Meter, error) {
	e, err := s.entry(meterID)
	if err != nil {
		return nil, nil, err
	}

	// Token lock before meter lock, consistently; the meter side never
	// takes the token lock, so ordering cannot deadlock.
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	t, ok := s.tokens[code]
	if !ok {
		return nil, nil, ErrTokenNotFound
	}
	if t.Status == db.TokenUsed {
		return nil, nil, ErrTokenAlreadyUsed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.meter
	next.Credit(t.AmountKwh)
	next.Version = e.meter.Version + 1
	e.meter = next

	usedAt := at
	t.Status = db.TokenUsed
	t.MeterID = &meterID
	t.UsedAt = &usedAt

	tok := *t
	m := next
	return &tok, &m, nil
}

func (s *Memory) InsertReading(_ context.Context, r *db.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.readings = append(s.readings, *r)
	return nil
}

func (s *Memory) InsertAlert(_ context.Context, a *db.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *Memory) InsertNotification(_ context.Context, n *db.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notices = append(s.notices, *n)
	return nil
}

func (s *Memory) ListTopups(_ context.Context) ([]db.Topup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]db.Topup, len(s.topups))
	copy(out, s.topups)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) ListAlerts(_ context.Context) ([]db.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]db.Alert, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) RecentReadings(_ context.Context, meterID uuid.UUID, limit int) ([]db.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []db.Reading
	for i := len(s.readings) - 1; i >= 0 && len(out) < limit; i-- {
		if s.readings[i].MeterID == meterID {
			out = append(out, s.readings[i])
		}
	}
	return out, nil
}

var _ Store = (*Memory)(nil)
