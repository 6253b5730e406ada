package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMeter(t *testing.T, s *store.Memory, balance float64) *db.Meter {
	t.Helper()
	m := &db.Meter{
		MeterCode:       "MTR-" + uuid.NewString()[:8],
		UserID:          "user-1",
		Category:        "residential",
		BalanceKwh:      balance,
		Status:          db.StatusOn,
		LowThresholdKwh: 10,
	}
	require.NoError(t, s.CreateMeter(context.Background(), m))
	return m
}

func TestCreateMeter_DuplicateCode(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	m := &db.Meter{MeterCode: "MTR-001", Status: db.StatusOn}
	require.NoError(t, s.CreateMeter(ctx, m))

	dup := &db.Meter{MeterCode: "MTR-001", Status: db.StatusOn}
	assert.ErrorIs(t, s.CreateMeter(ctx, dup), store.ErrMeterExists)
}

func TestGetMeter_NotFound(t *testing.T) {
	s := store.NewMemory()

	_, err := s.GetMeter(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrMeterNotFound)

	_, err = s.GetMeterByCode(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrMeterNotFound)
}

func TestApplyMeter_MutateErrorLeavesStateUntouched(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	m := newMeter(t, s, 50)

	_, err := s.ApplyMeter(ctx, m.ID, func(m *db.Meter) error {
		m.BalanceKwh = 0
		return fmt.Errorf("pricing failed")
	})
	require.Error(t, err)

	got, err := s.GetMeter(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.BalanceKwh)
	assert.Equal(t, int64(0), got.Version)
}

func TestApplyMeter_ConcurrentIncrementsAllLand(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	m := newMeter(t, s, 0)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.ApplyMeter(ctx, m.ID, func(m *db.Meter) error {
				m.BalanceKwh += 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetMeter(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(workers), got.BalanceKwh)
	assert.Equal(t, int64(workers), got.Version)
}

func TestPurchaseTopup_AtomicRecordAndRetryOnCollision(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	m := newMeter(t, s, 0)

	// First purchase claims the code "A".
	_, _, err := s.PurchaseTopup(ctx, m.ID, func(m *db.Meter) (*db.Topup, error) {
		m.BalanceKwh += 5
		return &db.Topup{MeterID: m.ID, AmountPaid: 500, KwhBought: 5, TokenCode: "11111111111111111111"}, nil
	})
	require.NoError(t, err)

	// Second purchase collides on the first attempt, then re-mints.
	attempt := 0
	meter, topup, err := s.PurchaseTopup(ctx, m.ID, func(m *db.Meter) (*db.Topup, error) {
		attempt++
		code := "11111111111111111111"
		if attempt > 1 {
			code = "22222222222222222222"
		}
		m.BalanceKwh += 3
		return &db.Topup{MeterID: m.ID, AmountPaid: 300, KwhBought: 3, TokenCode: code}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempt)
	assert.Equal(t, "22222222222222222222", topup.TokenCode)
	// The colliding attempt's mutation was discarded, not applied twice.
	assert.Equal(t, 8.0, meter.BalanceKwh)

	topups, err := s.ListTopups(ctx)
	require.NoError(t, err)
	assert.Len(t, topups, 2)
}

func TestPurchaseTopup_MutateErrorAborts(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	m := newMeter(t, s, 10)

	_, _, err := s.PurchaseTopup(ctx, m.ID, func(m *db.Meter) (*db.Topup, error) {
		m.BalanceKwh += 99
		return nil, fmt.Errorf("invalid amount")
	})
	require.Error(t, err)

	got, err := s.GetMeter(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.BalanceKwh)

	topups, err := s.ListTopups(ctx)
	require.NoError(t, err)
	assert.Empty(t, topups)
}

func TestTokens_CreateGetAndDuplicate(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	tok := &db.Token{TokenCode: "33333333333333333333", AmountKwh: 25, Status: db.TokenUnused}
	require.NoError(t, s.CreateToken(ctx, tok))

	got, err := s.GetToken(ctx, tok.TokenCode)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.AmountKwh)
	assert.Equal(t, db.TokenUnused, got.Status)

	dup := &db.Token{TokenCode: tok.TokenCode, AmountKwh: 10, Status: db.TokenUnused}
	assert.ErrorIs(t, s.CreateToken(ctx, dup), store.ErrDuplicateCode)

	_, err = s.GetToken(ctx, "00000000000000000000")
	assert.ErrorIs(t, err, store.ErrTokenNotFound)
}

func TestRedeemToken_OneShot(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	meterA := newMeter(t, s, 0)
	meterB := newMeter(t, s, 0)

	tok := &db.Token{TokenCode: "44444444444444444444", AmountKwh: 25, Status: db.TokenUnused}
	require.NoError(t, s.CreateToken(ctx, tok))

	redeemed, m, err := s.RedeemToken(ctx, tok.TokenCode, meterA.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, db.TokenUsed, redeemed.Status)
	require.NotNil(t, redeemed.MeterID)
	assert.Equal(t, meterA.ID, *redeemed.MeterID)
	assert.NotNil(t, redeemed.UsedAt)
	assert.Equal(t, 25.0, m.BalanceKwh)
	assert.Equal(t, db.StatusOn, m.Status)

	// Replay by a different meter is rejected and leaves it untouched.
	_, _, err = s.RedeemToken(ctx, tok.TokenCode, meterB.ID, time.Now())
	assert.ErrorIs(t, err, store.ErrTokenAlreadyUsed)

	gotB, err := s.GetMeter(ctx, meterB.ID)
	require.NoError(t, err)
	assert.Zero(t, gotB.BalanceKwh)
}

func TestRedeemToken_ConcurrentSingleWinner(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	meterA := newMeter(t, s, 0)
	meterB := newMeter(t, s, 0)

	tok := &db.Token{TokenCode: "55555555555555555555", AmountKwh: 25, Status: db.TokenUnused}
	require.NoError(t, s.CreateToken(ctx, tok))

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for _, id := range []uuid.UUID{meterA.ID, meterB.ID} {
		go func(meterID uuid.UUID) {
			defer wg.Done()
			_, _, err := s.RedeemToken(ctx, tok.TokenCode, meterID, time.Now())
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var successes, alreadyUsed int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case err == store.ErrTokenAlreadyUsed:
			alreadyUsed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, alreadyUsed)

	// Exactly one meter got credited.
	a, err := s.GetMeter(ctx, meterA.ID)
	require.NoError(t, err)
	b, err := s.GetMeter(ctx, meterB.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, a.BalanceKwh+b.BalanceKwh)
}

func TestAppendStreamsAndProjections(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	m := newMeter(t, s, 10)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertReading(ctx, &db.Reading{
			MeterID:   m.ID,
			Voltage:   230,
			Current:   2,
			Power:     0.46,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, s.InsertAlert(ctx, &db.Alert{MeterID: m.ID, Type: db.AlertLowBalance, Message: "low"}))
	require.NoError(t, s.InsertNotification(ctx, &db.Notification{Type: db.NotificationNewMeter, Title: "t"}))

	readings, err := s.RecentReadings(ctx, m.ID, 3)
	require.NoError(t, err)
	assert.Len(t, readings, 3)

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, db.AlertLowBalance, alerts[0].Type)

	meters, err := s.ListMeters(ctx)
	require.NoError(t, err)
	assert.Len(t, meters, 1)
}
