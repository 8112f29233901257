package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"finease/internal/core"
)

// formatMoney formats a decimal sum as a dollar amount (e.g., "$1,234.50").
func formatMoney(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// formatAmount formats a single transaction amount.
func formatAmount(a core.Amount) string {
	return formatMoney(decimal.NewFromFloat(a.Float64()))
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to location. htmx requests get HX-Redirect,
// since a 303 would be followed by the XHR and swapped into the page.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(location).Write(w)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// percent returns part/whole as an integer percentage in [0, 100]. Non-zero
// parts get at least 2 so small bars stay visible.
func percent(part, whole decimal.Decimal) int {
	if !whole.IsPositive() || !part.IsPositive() {
		return 0
	}
	p := int(part.Mul(decimal.NewFromInt(100)).Div(whole).Round(0).IntPart())
	if p < 2 {
		p = 2
	}
	if p > 100 {
		p = 100
	}
	return p
}

// pathOf returns the path and query of a URL, dropping scheme and host.
func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	return u.RequestURI()
}
