package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
)

func bar(y int, m time.Month, d int, c float64) model.OHLCV {
	return model.OHLCV{Date: calendar.Day(y, m, d), Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000}
}

func TestWriteReadAcrossYears(t *testing.T) {
	s := New(t.TempDir())
	files, err := s.WriteBars("2330", []model.OHLCV{
		bar(2024, time.December, 31, 100),
		bar(2025, time.January, 2, 101),
		bar(2025, time.January, 3, 102),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, files)

	_, err = os.Stat(filepath.Join(s.Dir, "2330", "2024.parquet"))
	require.NoError(t, err)

	got, err := s.ReadBars("2330", calendar.Day(2024, time.December, 1), calendar.Day(2025, time.January, 2))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, bar(2024, time.December, 31, 100), got[0])
	assert.Equal(t, calendar.Day(2025, time.January, 2), got[1].Date)
}

func TestWriteMergesByDate(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.WriteBars("2330", []model.OHLCV{bar(2025, time.September, 1, 100), bar(2025, time.September, 2, 101)})
	require.NoError(t, err)
	_, err = s.WriteBars("2330", []model.OHLCV{bar(2025, time.September, 2, 111), bar(2025, time.September, 3, 112)})
	require.NoError(t, err)

	got, err := s.ReadBars("2330", calendar.Day(2025, time.January, 1), calendar.Day(2025, time.December, 31))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].Close)
	assert.Equal(t, 111.0, got[1].Close)
	assert.Equal(t, 112.0, got[2].Close)
}

func TestReadMissingTicker(t *testing.T) {
	s := New(t.TempDir())
	got, err := s.ReadBars("9999", calendar.Day(2025, time.January, 1), calendar.Day(2025, time.December, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}
