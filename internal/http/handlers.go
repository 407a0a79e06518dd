package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/store"
)

// listResponse mirrors the state a client needs to render the collection:
// the rows, whether the first fetch is still in flight, and the last fetch
// error when the rows may be stale.
type listResponse struct {
	Expenses []core.Expense `json:"expenses"`
	Loading  bool           `json:"loading"`
	Error    string         `json:"error,omitempty"`
}

type createResponse struct {
	Expense core.Expense `json:"expense"`
	Queued  bool         `json:"queued,omitempty"`
}

// createRequest carries the amount as a raw token so JSON numbers and
// strings ("12,50" included) both funnel through core.ParseAmount.
type createRequest struct {
	UserID      string          `json:"user_id"`
	Amount      json.RawMessage `json:"amount"`
	Category    core.Category   `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

type summaryResponse struct {
	Locale string       `json:"locale"`
	Months []summaryRow `json:"months"`
}

type summaryRow struct {
	core.MonthTotal
	Formatted string `json:"formatted"`
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListExpenses(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	snapshot := s.expenses.Snapshot()

	// A fetch failure with nothing cached is a hard error; with cached
	// rows we keep serving them and report the error alongside.
	if err := s.expenses.Err(); err != nil {
		if len(snapshot) == 0 && !s.expenses.Loading() {
			s.logger.ErrorContext(r.Context(), "Expense fetch failed with no cached rows",
				log.FieldError, err, log.FieldOperation, log.OpFetch)
			s.writeError(w, http.StatusInternalServerError, "failed to fetch expenses")
			return
		}
		s.writeJSON(w, http.StatusOK, listResponse{
			Expenses: snapshot,
			Loading:  s.expenses.Loading(),
			Error:    err.Error(),
		})
		return
	}

	if snapshot == nil {
		snapshot = []core.Expense{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{
		Expenses: snapshot,
		Loading:  s.expenses.Loading(),
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.ParseAmount(strings.Trim(string(req.Amount), `"`))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	cand := core.Candidate{
		UserID:      req.UserID,
		Amount:      amount,
		Category:    req.Category,
		Description: req.Description,
		Date:        req.Date,
	}

	// Reject bad input before touching the network.
	if err := cand.Normalize(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	row, err := s.expenses.Create(r.Context(), cand)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, createResponse{Expense: row})

	case errors.Is(err, core.ErrInvalidInput):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())

	case store.IsUnavailable(err):
		// Store unreachable: park the expense locally and report it as
		// accepted so the client can show the synthesized row.
		queued := s.queue.Enqueue(r.Context(), cand)
		s.logger.InfoContext(r.Context(), "Expense queued while store unreachable",
			log.FieldExpenseID, queued.ID,
			log.FieldQueueDepth, s.queue.Depth(r.Context()))
		s.writeJSON(w, http.StatusAccepted, createResponse{Expense: queued, Queued: true})

	default:
		s.logger.ErrorContext(r.Context(), "Expense create failed",
			log.FieldError, err, log.FieldOperation, log.OpCreate)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	locale := s.resolveLocale(r)
	key := fmt.Sprintf("%d:%s", s.expenses.Generation(), locale)

	if body, found := s.summaryCache.Get(key); found {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(body)
		return
	}

	months := core.MonthlySummary(s.expenses.Snapshot())
	rows := make([]summaryRow, len(months))
	for i, m := range months {
		rows[i] = summaryRow{
			MonthTotal: m,
			Formatted:  core.FormatCurrency(m.Total, locale),
		}
	}

	body, err := json.Marshal(summaryResponse{Locale: locale.String(), Months: rows})
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed encoding summary", log.FieldError, err)
		s.writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	s.summaryCache.Set(key, body)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(body)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filename := "expenses-" + time.Now().Format(core.DateLayout) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Date", "Category", "Description", "Amount"})
	for _, e := range s.expenses.Snapshot() {
		_ = cw.Write([]string{e.Date, e.Category.String(), e.Description, e.Amount.StringFixed(2)})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.ErrorContext(r.Context(), "CSV export failed",
			log.FieldError, err, log.FieldOperation, log.OpExport)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	locale := s.resolveLocale(r)

	type row struct {
		Date        string
		Category    string
		Description string
		Amount      string
	}
	data := struct {
		Rows       []row
		Loading    bool
		Error      string
		Categories []core.Category
		Queued     int
	}{
		Loading:    s.expenses.Loading(),
		Categories: core.Categories,
		Queued:     s.queue.Depth(r.Context()),
	}
	if err := s.expenses.Err(); err != nil {
		data.Error = err.Error()
	}
	for _, e := range s.expenses.Snapshot() {
		data.Rows = append(data.Rows, row{
			Date:        e.Date,
			Category:    e.Category.String(),
			Description: e.Description,
			Amount:      core.FormatCurrency(e.Amount, locale),
		})
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// resolveLocale picks the display locale from the query parameter, falling
// back to Accept-Language and then the configured default.
func (s *Server) resolveLocale(r *http.Request) language.Tag {
	if hint := strings.TrimSpace(r.URL.Query().Get("locale")); hint != "" {
		return core.MatchLocale(hint)
	}
	if hint := r.Header.Get("Accept-Language"); hint != "" {
		return core.MatchLocale(hint)
	}
	return s.defaultLocale
}
