package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finease/internal/core"
	"finease/internal/ledger"
	"finease/internal/log"
)

// confirmView backs confirm.html, the page shown before irreversible actions.
type confirmView struct {
	Title        string
	Text         string
	Action       string
	ConfirmLabel string
	CancelURL    string
	Disabled     bool
}

type transactionForm struct {
	Action            string
	Transaction       core.Transaction
	Types             []core.TxType
	Categories        []string
	IncomeCategories  []string
	ExpenseCategories []string
	Today             string
}

func newTransactionForm(action string, t core.Transaction) transactionForm {
	if t.Type == "" {
		t.Type = core.Income
	}
	return transactionForm{
		Action:            action,
		Transaction:       t,
		Types:             []core.TxType{core.Income, core.Expense},
		Categories:        core.CategoriesFor(t.Type),
		IncomeCategories:  core.IncomeCategories,
		ExpenseCategories: core.ExpenseCategories,
		Today:             time.Now().Format("2006-01-02"),
	}
}

type transactionsView struct {
	ledger.View
	Sorts     []sortOption
	PageSizes []int
	Error     string
}

type sortOption struct {
	Key   string
	Label string
}

var transactionSorts = []sortOption{
	{ledger.SortDateDesc, "Date (newest)"},
	{ledger.SortDateAsc, "Date (oldest)"},
	{ledger.SortAmountDesc, "Amount (high to low)"},
	{ledger.SortAmountAsc, "Amount (low to high)"},
	{ledger.SortCategoryAsc, "Category (A-Z)"},
	{ledger.SortCategoryDesc, "Category (Z-A)"},
	{ledger.SortTypeAsc, "Type (A-Z)"},
	{ledger.SortTypeDesc, "Type (Z-A)"},
}

// mutationNotice maps a ledger error to a status and notification.
func mutationNotice(err error) (int, Notification) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, failure("Action failed", "Transaction not found.")
	case errors.Is(err, ledger.ErrNotConfirmed):
		return http.StatusBadRequest, failure("Are you sure?", "This transaction will be permanently deleted!")
	case errors.Is(err, ledger.ErrActionFailed):
		return http.StatusBadGateway, failure("Action failed", "Try again later.")
	default:
		return http.StatusUnprocessableEntity, failure("Invalid input", err.Error())
	}
}

func (s *Server) handleAddTransactionPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "add_transaction.html",
		s.newPage(r, "Add Transaction", newTransactionForm("/add-transaction", core.Transaction{})))
}

// handleCategoryOptions renders the category select for the chosen type.
func (s *Server) handleCategoryOptions(w http.ResponseWriter, r *http.Request) {
	t := core.TxType(r.URL.Query().Get("type"))
	if !t.Valid() {
		t = core.Income
	}
	s.renderPartial(w, r, "add_transaction.html", "category_options", newTransactionForm("", core.Transaction{Type: t}))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	t, err := s.ledger.Create(r.Context(), id, ParseTransactionForm(p))
	if err != nil {
		status, n := mutationNotice(err)
		s.respond(w, r, outcome{Status: status, Notice: n, Back: "/add-transaction"})
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction added",
		log.FieldTxID, t.ID, log.FieldTxType, t.Type, log.FieldCategory, t.Category)
	s.respond(w, r, outcome{
		Notice:   success("Transaction Added!", "Your transaction was saved."),
		Back:     "/add-transaction",
		Triggers: []string{"form:reset", "transactions:changed"},
	})
}

// handleTransactions renders the list. Full page loads refetch from the
// backend; htmx table updates reuse the loaded list.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}

	view := transactionsView{Sorts: transactionSorts, PageSizes: ledger.PageSizes}
	refresh := !isHTMX(r) || r.URL.Query().Get("refresh") == "1"
	if refresh || !s.ledger.Loaded(id.Email) {
		if err := s.ledger.Load(r.Context(), id.Email); err != nil {
			view.Error = "Could not load your transactions. Showing the last loaded list."
		}
	}

	current := s.ledger.View()
	ParseListParams(r.URL.Query()).Apply(s.ledger, current.Query, current.SortKey, current.PageSize)
	view.View = s.ledger.View()

	if isHTMX(r) {
		s.renderPartial(w, r, "my_transactions.html", "transactions_table", view)
		return
	}
	s.render(w, r, http.StatusOK, "my_transactions.html", s.newPage(r, "My Transactions", view))
}

// loadedTransaction returns a transaction of the signed-in user, loading the
// list first when it belongs to someone else or was never fetched.
func (s *Server) loadedTransaction(r *http.Request, email, id string) (core.Transaction, bool) {
	if !s.ledger.Loaded(email) {
		if err := s.ledger.Load(r.Context(), email); err != nil {
			return core.Transaction{}, false
		}
	}
	return s.ledger.Get(id)
}

func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	t, found := s.loadedTransaction(r, ident.Email, id)
	if !found {
		s.handleNotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "transaction.html",
		s.newPage(r, "Transaction", newTransactionForm("/my-transactions/"+t.ID, t)))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	back := "/my-transactions/" + id
	if _, found := s.loadedTransaction(r, ident.Email, id); !found {
		s.respond(w, r, outcome{Status: http.StatusNotFound, Notice: failure("Action failed", "Transaction not found."), Back: "/my-transactions"})
		return
	}
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	if _, err := s.ledger.Update(r.Context(), id, ParseTransactionForm(p)); err != nil {
		status, n := mutationNotice(err)
		s.respond(w, r, outcome{Status: status, Notice: n, Back: back})
		return
	}
	s.respond(w, r, outcome{
		Notice:   success("Updated!", "Transaction has been updated."),
		Back:     back,
		Triggers: []string{"transactions:changed"},
	})
}

func (s *Server) handleDeleteTransactionConfirm(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, found := s.loadedTransaction(r, ident.Email, id); !found {
		s.handleNotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "confirm.html", s.newPage(r, "Delete Transaction", confirmView{
		Title:        "Are you sure?",
		Text:         "This transaction will be permanently deleted!",
		Action:       "/my-transactions/" + id + "/delete",
		ConfirmLabel: "Yes, delete it!",
		CancelURL:    "/my-transactions",
	}))
}

// handleDeleteTransaction requires confirmed=true in the body; the confirm
// page and the htmx hx-confirm prompt both send it.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if errResp := RequireDeleteOrPOST(r); errResp != nil {
		errResp.Write(w)
		return
	}
	ident, ok := s.currentIdentity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, found := s.loadedTransaction(r, ident.Email, id); !found {
		s.respond(w, r, outcome{Status: http.StatusNotFound, Notice: failure("Action failed", "Transaction not found."), Back: "/my-transactions"})
		return
	}
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	if err := s.ledger.Delete(r.Context(), id, p.Bool("confirmed")); err != nil {
		status, n := mutationNotice(err)
		s.respond(w, r, outcome{Status: status, Notice: n, Back: "/my-transactions"})
		return
	}
	o := outcome{
		Notice:   success("Deleted!", "Transaction has been deleted."),
		Back:     "/my-transactions",
		Triggers: []string{"transactions:changed"},
	}
	if !isHTMX(r) {
		o.Redirect = "/my-transactions"
	}
	s.respond(w, r, o)
}
