package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

func day(d int) time.Time { return calendar.Day(2025, time.September, d) }

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

// runStoreSuite exercises the contract every adapter must meet. newStore
// must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("EnsureCompanyIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureCompany(ctx, "2330", "TSMC", "Semis"))
		require.NoError(t, s.EnsureCompany(ctx, " 2330 ", "", ""))
		require.NoError(t, s.EnsureCompany(ctx, "2317", "", ""))

		tickers, err := s.ListTickers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2317", "2330"}, tickers)

		cs, err := s.ListCompanies(ctx, "", 10, 0)
		require.NoError(t, err)
		require.Len(t, cs, 2)
		assert.Equal(t, "2317", cs[0].Name, "name defaults to ticker")
		assert.Equal(t, "TSMC", cs[1].Name)
		assert.Equal(t, "Semis", cs[1].Sector)

		assert.Error(t, s.EnsureCompany(ctx, "  ", "", ""))
	})

	t.Run("UpsertDefaultsAndOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertOHLCV(ctx, "2330", model.DailyPrice{Date: day(1), Close: 100}))

		bars, err := s.PriceSeries(ctx, "2330", day(1), day(1))
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, model.OHLCV{Date: day(1), Open: 100, High: 100, Low: 100, Close: 100}, bars[0])

		require.NoError(t, s.UpsertOHLCV(ctx, "2330", model.DailyPrice{
			Date: day(1), Open: f64(99), High: f64(102), Low: f64(98), Close: 101, Volume: i64(5000),
		}))
		bars, err = s.PriceSeries(ctx, "2330", day(1), day(1))
		require.NoError(t, err)
		require.Len(t, bars, 1, "upsert never duplicates")
		assert.Equal(t, model.OHLCV{Date: day(1), Open: 99, High: 102, Low: 98, Close: 101, Volume: 5000}, bars[0])

		tickers, err := s.ListTickers(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2330"}, tickers, "upsert registers unknown tickers")
	})

	t.Run("ExistingTradeDatesAndSeries", func(t *testing.T) {
		s := newStore(t)
		for _, d := range []int{1, 3, 8} {
			require.NoError(t, s.UpsertOHLCV(ctx, "2330", model.DailyPrice{Date: day(d), Close: float64(100 + d)}))
		}
		require.NoError(t, s.UpsertOHLCV(ctx, "2317", model.DailyPrice{Date: day(2), Close: 50}))

		got, err := s.ExistingTradeDates(ctx, "2330", day(1), day(5))
		require.NoError(t, err)
		assert.Equal(t, map[time.Time]struct{}{day(1): {}, day(3): {}}, got)

		series, err := s.CloseSeries(ctx, "2330", day(1), day(30))
		require.NoError(t, err)
		assert.Equal(t, []model.ClosePoint{{Date: day(1), Close: 101}, {Date: day(3), Close: 103}, {Date: day(8), Close: 108}}, series)

		last, ok, err := s.LastPriceDate(ctx, "2330")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, day(8), last)

		latest, ok, err := s.LatestClose(ctx, "2330")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 108.0, latest.Close)

		_, ok, err = s.LastPriceDate(ctx, "9999")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = s.LatestClose(ctx, "9999")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeletePricesAndCompany", func(t *testing.T) {
		s := newStore(t)
		for _, tk := range []string{"2330", "2317"} {
			for _, d := range []int{1, 2, 3} {
				require.NoError(t, s.UpsertOHLCV(ctx, tk, model.DailyPrice{Date: day(d), Close: 10}))
			}
		}
		n, err := s.DeletePrices(ctx, day(2), day(3), []string{"2330"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = s.DeletePrices(ctx, day(1), day(1), nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		deleted, err := s.DeleteCompany(ctx, "2317")
		require.NoError(t, err)
		assert.True(t, deleted)
		series, err := s.CloseSeries(ctx, "2317", day(1), day(30))
		require.NoError(t, err)
		assert.Empty(t, series)

		deleted, err = s.DeleteCompany(ctx, "2317")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("UpsertCompanyKeepsExistingFields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertCompany(ctx, model.Company{Ticker: "2330", Name: "TSMC", Sector: "Semis"}))
		require.NoError(t, s.UpsertCompany(ctx, model.Company{Ticker: "2330", Name: "Taiwan Semiconductor"}))

		cs, err := s.ListCompanies(ctx, "taiwan", 10, 0)
		require.NoError(t, err)
		require.Len(t, cs, 1)
		assert.Equal(t, "Semis", cs[0].Sector)

		assert.Error(t, s.UpsertCompany(ctx, model.Company{}))
	})

	t.Run("ConcurrentWritersOnDifferentTickers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				tk := fmt.Sprintf("T%d", w)
				for d := 1; d <= 10; d++ {
					errs <- s.UpsertOHLCV(ctx, tk, model.DailyPrice{Date: day(d), Close: float64(d)})
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		for w := 0; w < 4; w++ {
			got, err := s.ExistingTradeDates(ctx, fmt.Sprintf("T%d", w), day(1), day(30))
			require.NoError(t, err)
			assert.Len(t, got, 10)
		}
	})
}
