package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEraDate(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"recent", Day(2025, time.September, 2), "114/09/02"},
		{"two digit era year", Day(2010, time.January, 4), "99/01/04"},
		{"year end", Day(2024, time.December, 31), "113/12/31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToEraDate(tt.in))
		})
	}
}

func TestEraDateRoundTrip(t *testing.T) {
	d := Day(2000, time.January, 1)
	end := Day(2030, time.December, 31)
	for ; !d.After(end); d = d.AddDate(0, 0, 17) {
		got, err := FromEraDate(ToEraDate(d))
		require.NoError(t, err)
		require.True(t, got.Equal(d), "round trip of %s gave %s", d, got)
	}
}

func TestFromEraDate(t *testing.T) {
	got, err := FromEraDate(" 114/09/02 ")
	require.NoError(t, err)
	assert.Equal(t, Day(2025, time.September, 2), got)

	bad := []string{"", "114/09", "114/09/02/01", "abc/09/02", "114/x/02", "114/13/01", "114/02/30", "114/00/10"}
	for _, in := range bad {
		t.Run(in, func(t *testing.T) {
			_, err := FromEraDate(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
		})
	}
}

func TestBusinessDays(t *testing.T) {
	days := BusinessDays(Day(2025, time.September, 1), Day(2025, time.September, 7))
	require.Len(t, days, 5)
	for i, d := range days {
		assert.Equal(t, Day(2025, time.September, 1+i), d)
		assert.True(t, IsBusinessDay(d))
	}

	assert.Empty(t, BusinessDays(Day(2025, time.September, 6), Day(2025, time.September, 7)))
	assert.Nil(t, BusinessDays(Day(2025, time.September, 5), Day(2025, time.September, 1)))

	single := BusinessDays(Day(2025, time.September, 3), Day(2025, time.September, 3))
	assert.Equal(t, []time.Time{Day(2025, time.September, 3)}, single)
}

func TestBusinessDaysIgnoresClock(t *testing.T) {
	loc := time.FixedZone("TST", 8*3600)
	start := time.Date(2025, time.September, 1, 23, 30, 0, 0, loc)
	end := time.Date(2025, time.September, 2, 1, 0, 0, 0, loc)
	days := BusinessDays(start, end)
	assert.Equal(t, []time.Time{Day(2025, time.September, 1), Day(2025, time.September, 2)}, days)
}

func TestMonth(t *testing.T) {
	a := MonthOf(Day(2024, time.December, 31))
	b := MonthOf(Day(2025, time.January, 2))
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.Equal(t, "2024-12", a.String())
}
