package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/report"
)

type categoryBar struct {
	Category string
	Total    decimal.Decimal
	Share    float64
	Width    int
}

type monthBar struct {
	Month string
	Total decimal.Decimal
	Width int
}

type reportView struct {
	report.Summary
	Categories []categoryBar
	Months     []monthBar
	Error      string
}

func newReportView(sum report.Summary) reportView {
	v := reportView{Summary: sum}

	var maxCat decimal.Decimal
	for _, c := range sum.ByCategory {
		if c.Total.GreaterThan(maxCat) {
			maxCat = c.Total
		}
	}
	for _, c := range sum.ByCategory {
		v.Categories = append(v.Categories, categoryBar{
			Category: c.Category, Total: c.Total, Share: c.Share, Width: percent(c.Total, maxCat),
		})
	}

	var maxMonth decimal.Decimal
	for _, m := range sum.ByMonth {
		if m.Total.GreaterThan(maxMonth) {
			maxMonth = m.Total
		}
	}
	for _, m := range sum.ByMonth {
		v.Months = append(v.Months, monthBar{Month: m.Month, Total: m.Total, Width: percent(m.Total, maxMonth)})
	}
	return v
}

// summary returns the report of email. Fresh requests recompute it from the
// backend and refill the cache; the rest are served from the cache, loading
// on a miss. When no cache is configured every call loads.
func (s *Server) summary(ctx context.Context, email string, fresh bool) (report.Summary, error) {
	if s.reports == nil {
		txs, err := s.txs.Transactions(ctx, email)
		if err != nil {
			return report.Summary{}, err
		}
		return report.Summarize(txs), nil
	}
	if fresh {
		s.reports.Invalidate(email)
	}
	return s.reports.Get(email, func() ([]core.Transaction, error) {
		return s.txs.Transactions(ctx, email)
	})
}

func (s *Server) reportFor(r *http.Request, email string, fresh bool) reportView {
	sum, err := s.summary(r.Context(), email, fresh)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to build report",
			log.FieldEmail, email, log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		v := newReportView(report.Summary{})
		v.Error = "Could not load your transactions."
		return v
	}
	return newReportView(sum)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	// Full page loads bypass the cache.
	view := s.reportFor(r, id.Email, !isHTMX(r))
	if isHTMX(r) {
		s.renderPartial(w, r, "reports.html", "report_body", view)
		return
	}
	s.render(w, r, http.StatusOK, "reports.html", s.newPage(r, "Reports", view))
}

// handleDashboard is the signed-in overview: balance cards and spending by
// category. Admins also get links to the user pages.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "dashboard.html", s.newPage(r, "Dashboard", s.reportFor(r, id.Email, true)))
}
