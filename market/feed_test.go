package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFeed(t *testing.T) *Feed {
	t.Helper()
	return NewFeed(Config{Spread: decimal.NewFromFloat(0.01), VolumeStep: 100}, zap.NewNop())
}

func TestAddInstrumentPublishesOpeningQuote(t *testing.T) {
	feed := newTestFeed(t)
	feed.now = func() time.Time { return time.Unix(0, 0) }

	err := feed.AddInstrument(Instrument{Symbol: "ACME", Name: "Acme Corp", LotSize: 1}, decimal.NewFromInt(100))
	require.NoError(t, err)

	q, err := feed.GetQuote("ACME")
	require.NoError(t, err)
	assert.Equal(t, "100", q.Last.String())
	assert.Equal(t, "99.5", q.Bid.String())
	assert.Equal(t, "100.5", q.Ask.String())
	assert.Equal(t, "100", q.Open.String())
	assert.Equal(t, "100", q.High.String())
	assert.Equal(t, "100", q.Low.String())
	assert.EqualValues(t, 0, q.Volume)
}

func TestAddInstrumentValidation(t *testing.T) {
	feed := newTestFeed(t)

	err := feed.AddInstrument(Instrument{Symbol: "", LotSize: 1}, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidInstrument)

	err = feed.AddInstrument(Instrument{Symbol: "X", LotSize: 0}, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInvalidInstrument)

	err = feed.AddInstrument(Instrument{Symbol: "X", LotSize: 1}, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "X", LotSize: 1}, decimal.NewFromInt(10)))
	err = feed.AddInstrument(Instrument{Symbol: "X", LotSize: 1}, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInstrumentListed)
}

func TestGetQuoteUnknownSymbol(t *testing.T) {
	feed := newTestFeed(t)
	_, err := feed.GetQuote("NOPE")
	assert.ErrorIs(t, err, ErrInstrumentNotFound)
}

func TestUpdateRollsQuoteForward(t *testing.T) {
	feed := newTestFeed(t)
	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "ACME", LotSize: 1}, decimal.NewFromInt(100)))

	require.NoError(t, feed.Update("ACME", decimal.NewFromInt(110)))
	q, err := feed.GetQuote("ACME")
	require.NoError(t, err)
	assert.Equal(t, "110", q.Last.String())
	assert.Equal(t, "110", q.High.String())
	assert.Equal(t, "100", q.Low.String())
	assert.EqualValues(t, 100, q.Volume)

	require.NoError(t, feed.Update("ACME", decimal.NewFromInt(90)))
	q, err = feed.GetQuote("ACME")
	require.NoError(t, err)
	assert.Equal(t, "90", q.Last.String())
	assert.Equal(t, "110", q.High.String())
	assert.Equal(t, "90", q.Low.String())
	assert.EqualValues(t, 200, q.Volume)
	// Open never moves after listing.
	assert.Equal(t, "100", q.Open.String())
}

func TestUpdateRejectsBadInput(t *testing.T) {
	feed := newTestFeed(t)
	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "ACME", LotSize: 1}, decimal.NewFromInt(100)))

	assert.ErrorIs(t, feed.Update("ACME", decimal.Zero), ErrInvalidPrice)
	assert.ErrorIs(t, feed.Update("NOPE", decimal.NewFromInt(10)), ErrInstrumentNotFound)
}

func TestSubscribersNotifiedInOrderAndIsolated(t *testing.T) {
	feed := newTestFeed(t)
	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "ACME", LotSize: 1}, decimal.NewFromInt(100)))

	var calls []string
	feed.Subscribe("ACME", func(Quote) { calls = append(calls, "first") })
	feed.Subscribe("ACME", func(Quote) { panic("boom") })
	feed.Subscribe("ACME", func(Quote) { calls = append(calls, "third") })

	require.NoError(t, feed.Update("ACME", decimal.NewFromInt(101)))
	assert.Equal(t, []string{"first", "third"}, calls)

	// The feed survives the panicking subscriber.
	require.NoError(t, feed.Update("ACME", decimal.NewFromInt(102)))
	assert.Equal(t, []string{"first", "third", "first", "third"}, calls)
}

func TestStatusTransitions(t *testing.T) {
	feed := newTestFeed(t)
	assert.Equal(t, StatusPreOpen, feed.Status())

	require.NoError(t, feed.SetStatus(StatusOpen))
	assert.Equal(t, StatusOpen, feed.Status())

	// Open can only move to Closed.
	assert.ErrorIs(t, feed.SetStatus(StatusHoliday), ErrBadTransition)

	require.NoError(t, feed.SetStatus(StatusClosed))
	require.NoError(t, feed.SetStatus(StatusOpen))

	// Setting the current status is a no-op.
	require.NoError(t, feed.SetStatus(StatusOpen))
}

func TestUpdaterOnlyMovesPricesWhileOpen(t *testing.T) {
	feed := newTestFeed(t)
	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "ACME", LotSize: 1}, decimal.NewFromInt(100)))

	updater := NewUpdater(feed, UpdaterConfig{Interval: time.Millisecond, MaxStep: 0.01, Seed: 42}, zap.NewNop())

	updater.Step()
	q, _ := feed.GetQuote("ACME")
	assert.Equal(t, "100", q.Last.String(), "closed market must not move prices")

	require.NoError(t, feed.SetStatus(StatusOpen))
	updater.Step()
	q, _ = feed.GetQuote("ACME")
	assert.EqualValues(t, 100, q.Volume, "open market step must publish a new quote")
}

func TestUpdaterStepsAreBounded(t *testing.T) {
	feed := newTestFeed(t)
	require.NoError(t, feed.AddInstrument(Instrument{Symbol: "ACME", LotSize: 1}, decimal.NewFromInt(100)))
	require.NoError(t, feed.SetStatus(StatusOpen))

	updater := NewUpdater(feed, UpdaterConfig{Interval: time.Millisecond, MaxStep: 0.02, Seed: 7}, zap.NewNop())

	prev, _ := feed.GetQuote("ACME")
	for i := 0; i < 200; i++ {
		updater.Step()
		q, err := feed.GetQuote("ACME")
		require.NoError(t, err)
		assert.True(t, q.Last.Sign() > 0)

		move := q.Last.Sub(prev.Last).Abs()
		// Rounding to cents can add at most half a cent to the bound.
		limit := prev.Last.Mul(decimal.NewFromFloat(0.02)).Add(decimal.NewFromFloat(0.005))
		assert.True(t, move.LessThanOrEqual(limit),
			"step %s exceeds bound %s from %s", move, limit, prev.Last)
		prev = q
	}
}
