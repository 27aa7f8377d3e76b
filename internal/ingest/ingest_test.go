package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/quote-rollup/internal/failure"
	"github.com/sells-group/quote-rollup/internal/model"
	"github.com/sells-group/quote-rollup/pkg/quotable"
)

type mockQuotable struct {
	mock.Mock
}

func (m *mockQuotable) Random(ctx context.Context) ([]quotable.Quote, error) {
	args := m.Called(ctx)
	q, _ := args.Get(0).([]quotable.Quote)
	return q, args.Error(1)
}

type mockWriter struct {
	mock.Mock
	mu  sync.Mutex
	got []model.QuoteRecord
}

func (m *mockWriter) Put(ctx context.Context, rec model.QuoteRecord) error {
	m.mu.Lock()
	m.got = append(m.got, rec)
	m.mu.Unlock()
	return m.Called(ctx, rec).Error(0)
}

func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	t := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestPull(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{
		{ID: "q1", Content: "one", Author: "A", Tags: []string{"x"}, Length: 3},
		{ID: "q2", Content: "two", Author: "B", Length: 3},
	}, nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).Return(nil)

	svc := New(client, writer, WithConcurrency(2),
		WithClock(tickingClock(time.Date(2024, 5, 1, 23, 59, 59, 0, time.UTC))))

	recs, err := svc.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "q1", recs[0].QuoteID)
	assert.Equal(t, "2024-05-01", recs[0].IngestedDate)
	assert.Equal(t, "2024-05-01T23:59:59.001000+00:00", recs[0].IngestedAt)
	assert.Equal(t, "2024-05-01T23:59:59.002000+00:00", recs[1].IngestedAt)
	assert.Equal(t, []string{}, recs[1].TagList)
	assert.ElementsMatch(t, recs, writer.got)
	writer.AssertNumberOfCalls(t, "Put", 2)
}

func TestPull_NoQuotes(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{}, nil)
	writer := &mockWriter{}

	recs, err := New(client, writer).Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	writer.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestPull_FetchError(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return(nil, errors.New("quotable: random returned 503"))
	writer := &mockWriter{}

	_, err := New(client, writer).Pull(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPull_WriteFailed(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{{ID: "q1"}, {ID: "q2"}}, nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.MatchedBy(func(r model.QuoteRecord) bool { return r.QuoteID == "q1" })).Return(nil)
	writer.On("Put", mock.Anything, mock.MatchedBy(func(r model.QuoteRecord) bool { return r.QuoteID == "q2" })).
		Return(errors.New("status 500"))

	_, err := New(client, writer, WithConcurrency(1)).Pull(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.WriteFailed, failure.KindOf(err))
}

func TestPull_PreservesClassifiedWriteError(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{{ID: "q1"}}, nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).
		Return(failure.New(failure.Serialization, errors.New("bad"), "marshal"))

	_, err := New(client, writer).Pull(context.Background())
	require.Error(t, err)
	assert.Equal(t, failure.Serialization, failure.KindOf(err))
}

func TestWithConcurrency_IgnoresNonPositive(t *testing.T) {
	svc := New(&mockQuotable{}, &mockWriter{}, WithConcurrency(0))
	assert.Equal(t, 4, svc.concurrency)
}

func TestWithWriteRate(t *testing.T) {
	svc := New(&mockQuotable{}, &mockWriter{}, WithWriteRate(0))
	assert.Nil(t, svc.limiter)

	svc = New(&mockQuotable{}, &mockWriter{}, WithWriteRate(25))
	require.NotNil(t, svc.limiter)
	assert.InDelta(t, 25, float64(svc.limiter.Limit()), 1e-9)
}

func TestPull_RateLimited(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{
		{ID: "q1", Content: "one", Author: "A"},
		{ID: "q2", Content: "two", Author: "B"},
		{ID: "q3", Content: "three", Author: "C"},
	}, nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).Return(nil)

	svc := New(client, writer, WithWriteRate(1000))
	records, err := svc.Pull(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
	writer.AssertNumberOfCalls(t, "Put", 3)
}

func TestPull_RateLimitCancelled(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return([]quotable.Quote{{ID: "q1"}, {ID: "q2"}}, nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(client, writer, WithWriteRate(1))
	_, err := svc.Pull(ctx)
	assert.Error(t, err)
}

func manyQuotes(n int) []quotable.Quote {
	quotes := make([]quotable.Quote, n)
	for i := range quotes {
		quotes[i] = quotable.Quote{ID: fmt.Sprintf("q%d", i), Content: "same", Author: "A"}
	}
	return quotes
}

func assertDistinctKeys(t *testing.T, recs []model.QuoteRecord) {
	t.Helper()
	seen := make(map[string]bool, len(recs))
	for i, r := range recs {
		key := r.IngestedDate + "|" + r.IngestedAt
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
		assert.True(t, r.PartitionConsistent())
		if i > 0 {
			assert.Greater(t, r.IngestedAt, recs[i-1].IngestedAt)
		}
	}
}

func TestPull_DistinctKeysWithRealClock(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return(manyQuotes(20), nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).Return(nil)

	recs, err := New(client, writer).Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 20)
	assertDistinctKeys(t, recs)
}

func TestPull_DistinctKeysWithFrozenClock(t *testing.T) {
	client := &mockQuotable{}
	client.On("Random", mock.Anything).Return(manyQuotes(3), nil)
	writer := &mockWriter{}
	writer.On("Put", mock.Anything, mock.Anything).Return(nil)

	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recs, err := New(client, writer, WithClock(func() time.Time { return frozen })).Pull(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01T12:00:00.000000+00:00", recs[0].IngestedAt)
	assert.Equal(t, "2024-05-01T12:00:00.000001+00:00", recs[1].IngestedAt)
	assert.Equal(t, "2024-05-01T12:00:00.000002+00:00", recs[2].IngestedAt)
	assertDistinctKeys(t, recs)
}

func TestNextStamp(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 1500, time.UTC)
	first := nextStamp(base, time.Time{})
	assert.Equal(t, base.Truncate(time.Microsecond), first)

	// A clock reading that went backwards still moves forward.
	second := nextStamp(base.Add(-time.Second), first)
	assert.Equal(t, first.Add(time.Microsecond), second)

	later := base.Add(time.Second)
	assert.Equal(t, later.Truncate(time.Microsecond), nextStamp(later, second))
}
