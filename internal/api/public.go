package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FinSite/internal/calculator"
	"FinSite/internal/calendar"
	"FinSite/internal/store"
)

type seriesPoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealthDB(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("db ping failed")
		writeError(w, http.StatusServiceUnavailable, "db ping failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"db": "ok"})
}

// window reads the required from/to query parameters.
func window(r *http.Request) (time.Time, time.Time, error) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if !validateDate(from) || !validateDate(to) {
		return time.Time{}, time.Time{}, errors.New("from and to must be YYYY-MM-DD")
	}
	start, _ := calendar.ParseDay(from)
	end, _ := calendar.ParseDay(to)
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}
	return start, end, nil
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := s.store.CloseSeries(r.Context(), r.PathValue("ticker"), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("close series")
		writeError(w, http.StatusInternalServerError, "failed to read series")
		return
	}
	out := make([]seriesPoint, len(points))
	for i, p := range points {
		out[i] = seriesPoint{Date: calendar.FormatDay(p.Date), Close: p.Close}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	start, end, err := window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := parseIndicatorOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := s.store.CloseSeries(r.Context(), r.PathValue("ticker"), start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("close series")
		writeError(w, http.StatusInternalServerError, "failed to read series")
		return
	}
	writeJSON(w, http.StatusOK, calculator.Compute(points, opts))
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	ticker := store.NormalizeTicker(r.PathValue("ticker"))
	p, ok, err := s.store.LatestClose(r.Context(), ticker)
	if err != nil {
		s.logger.Error().Err(err).Msg("latest close")
		writeError(w, http.StatusInternalServerError, "failed to read price")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "price not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker": ticker,
		"price":  p.Close,
		"date":   calendar.FormatDay(p.Date),
		"ts":     time.Now().UnixMilli(),
	})
}

// parseIndicatorOptions starts from the defaults. A parameter present with
// an empty value suppresses that indicator.
func parseIndicatorOptions(q url.Values) (calculator.Options, error) {
	opts := calculator.DefaultOptions()

	if q.Has("ma") {
		opts.MAWindows = nil
		if v := q.Get("ma"); v != "" {
			windows, err := parseInts(v, -1)
			if err != nil {
				return opts, fmt.Errorf("ma: %w", err)
			}
			opts.MAWindows = windows
		}
	}
	if q.Has("macd") {
		opts.MACD = nil
		if v := q.Get("macd"); v != "" {
			spans, err := parseInts(v, 3)
			if err != nil {
				return opts, fmt.Errorf("macd: %w", err)
			}
			opts.MACD = &calculator.MACDParams{Fast: spans[0], Slow: spans[1], Signal: spans[2]}
		}
	}
	if q.Has("rsiperiod") {
		opts.RSIPeriod = 0
		if v := q.Get("rsiperiod"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("rsiperiod: %q is not a non-negative integer", v)
			}
			opts.RSIPeriod = n
		}
	}
	if q.Has("bb") {
		opts.Bollinger = nil
		if v := q.Get("bb"); v != "" {
			parts := strings.Split(v, ",")
			if len(parts) != 2 {
				return opts, errors.New("bb: want window,k")
			}
			win, err := strconv.Atoi(strings.TrimSpace(parts[0]))
			if err != nil {
				return opts, fmt.Errorf("bb window: %w", err)
			}
			k, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err != nil {
				return opts, fmt.Errorf("bb k: %w", err)
			}
			opts.Bollinger = &calculator.BollingerParams{Window: win, K: k}
		}
	}
	return opts, nil
}

// parseInts splits a comma list. want < 0 accepts any count.
func parseInts(s string, want int) ([]int, error) {
	parts := strings.Split(s, ",")
	if want >= 0 && len(parts) != want {
		return nil, fmt.Errorf("want %d comma-separated integers, got %q", want, s)
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}
