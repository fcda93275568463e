package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"FinSite/internal/calendar"
	"FinSite/internal/model"
	"FinSite/internal/store"
)

type companyIn struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
}

type priceIn struct {
	Ticker    string   `json:"ticker"`
	TradeDate string   `json:"trade_date"`
	Close     *float64 `json:"close"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Volume    *int64   `json:"volume"`
}

type reconcileIn struct {
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Tickers []string `json:"tickers"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := parseLimit(r, "limit", 1000)
	offset := parseLimit(r, "offset", 0)
	cs, err := s.store.ListCompanies(r.Context(), q, limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("list companies")
		writeError(w, http.StatusInternalServerError, "failed to list companies")
		return
	}
	if cs == nil {
		cs = []model.Company{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var in companyIn
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticker := store.NormalizeTicker(in.Ticker)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	if err := s.store.UpsertCompany(r.Context(), model.Company{Ticker: ticker, Name: in.Name, Sector: in.Sector}); err != nil {
		s.logger.Error().Err(err).Str("ticker", ticker).Msg("upsert company")
		writeError(w, http.StatusInternalServerError, "failed to create company")
		return
	}
	cs, err := s.store.ListCompanies(r.Context(), ticker, maxQueryLimit, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read company")
		return
	}
	for _, c := range cs {
		if c.Ticker == ticker {
			writeJSON(w, http.StatusCreated, c)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "failed to create company")
}

func (s *Server) handleBulkCompanies(w http.ResponseWriter, r *http.Request) {
	var items []companyIn
	if err := decodeBody(r, &items); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "no items")
		return
	}
	for i, it := range items {
		if store.NormalizeTicker(it.Ticker) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d: ticker is required", i))
			return
		}
	}
	for _, it := range items {
		if err := s.store.UpsertCompany(r.Context(), model.Company{Ticker: it.Ticker, Name: it.Name, Sector: it.Sector}); err != nil {
			s.logger.Error().Err(err).Str("ticker", it.Ticker).Msg("upsert company")
			writeError(w, http.StatusInternalServerError, "failed to upsert companies")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.DeleteCompany(r.Context(), r.PathValue("ticker"))
	if err != nil {
		s.logger.Error().Err(err).Msg("delete company")
		writeError(w, http.StatusInternalServerError, "failed to delete company")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLastPriceDate(w http.ResponseWriter, r *http.Request) {
	ticker := store.NormalizeTicker(r.PathValue("ticker"))
	d, ok, err := s.store.LastPriceDate(r.Context(), ticker)
	if err != nil {
		s.logger.Error().Err(err).Msg("last price date")
		writeError(w, http.StatusInternalServerError, "failed to read last price date")
		return
	}
	var last *string
	if ok {
		v := calendar.FormatDay(d)
		last = &v
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticker": ticker, "last_trade_date": last})
}

func (p priceIn) toDailyPrice() (model.DailyPrice, error) {
	if store.NormalizeTicker(p.Ticker) == "" {
		return model.DailyPrice{}, errors.New("ticker is required")
	}
	if p.Close == nil {
		return model.DailyPrice{}, errors.New("close is required")
	}
	if !validateDate(p.TradeDate) {
		return model.DailyPrice{}, fmt.Errorf("trade_date %q must be YYYY-MM-DD", p.TradeDate)
	}
	d, _ := calendar.ParseDay(p.TradeDate)
	return model.DailyPrice{Date: d, Open: p.Open, High: p.High, Low: p.Low, Close: *p.Close, Volume: p.Volume}, nil
}

func (s *Server) handleBulkPrices(w http.ResponseWriter, r *http.Request) {
	var items []priceIn
	if err := decodeBody(r, &items); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := make([]model.DailyPrice, len(items))
	for i, it := range items {
		p, err := it.toDailyPrice()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d: %v", i, err))
			return
		}
		rows[i] = p
	}
	for i, p := range rows {
		if err := s.store.UpsertOHLCV(r.Context(), items[i].Ticker, p); err != nil {
			s.logger.Error().Err(err).Str("ticker", items[i].Ticker).Msg("upsert price")
			writeError(w, http.StatusInternalServerError, "failed to upsert prices")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !validateDate(q.Get("start")) || !validateDate(q.Get("end")) {
		writeError(w, http.StatusBadRequest, "start and end must be YYYY-MM-DD")
		return
	}
	start, _ := calendar.ParseDay(q.Get("start"))
	end, _ := calendar.ParseDay(q.Get("end"))
	var tickers []string
	if v := q.Get("tickers"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = store.NormalizeTicker(t); t != "" {
				tickers = append(tickers, t)
			}
		}
	}
	n, err := s.store.DeletePrices(r.Context(), start, end, tickers)
	if err != nil {
		s.logger.Error().Err(err).Msg("delete prices")
		writeError(w, http.StatusInternalServerError, "failed to delete prices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// handleReconcile runs a gap backfill synchronously. Start defaults to the
// configured lookback before end, end defaults to today.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciler not configured")
		return
	}
	var in reconcileIn
	if r.ContentLength != 0 {
		if err := decodeBody(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	end := s.runner.Today()
	if in.End != "" {
		if !validateDate(in.End) {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
		end, _ = calendar.ParseDay(in.End)
	}
	start := end.AddDate(0, 0, -s.lookback)
	if in.Start != "" {
		if !validateDate(in.Start) {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
		start, _ = calendar.ParseDay(in.Start)
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not be before start")
		return
	}
	tickers := make([]string, 0, len(in.Tickers))
	for _, t := range in.Tickers {
		if t = store.NormalizeTicker(t); t != "" {
			tickers = append(tickers, t)
		}
	}

	begun := time.Now()
	sum, err := s.runner.ReconcileTickers(r.Context(), tickers, start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("reconcile")
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	if err := s.recorder.RecordRun(sum); err != nil {
		s.logger.Error().Err(err).Msg("record run")
	}
	s.logger.Info().Str("run_id", sum.RunID).Int("filled", sum.Filled()).
		Dur("elapsed", time.Since(begun)).Msg("admin reconcile finished")
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.recorder.RecentRuns(parseLimit(r, "limit", defaultRunsMax))
	if err != nil {
		s.logger.Error().Err(err).Msg("recent runs")
		writeError(w, http.StatusInternalServerError, "failed to read runs")
		return
	}
	if runs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
