package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

type (
	// TxType is the direction of a transaction.
	TxType string

	// Identity is the record kept by the identity provider for a signed-in user.
	Identity struct {
		Email       string
		DisplayName string
		PhotoURL    string
	}

	Transaction struct {
		ID          string `json:"_id,omitempty"`
		Type        TxType `json:"type"`
		Category    string `json:"category"`
		Amount      Amount `json:"amount"`
		Description string `json:"description"`
		Date        string `json:"date"` // YYYY-MM-DD
		UserEmail   string `json:"userEmail"`
		UserName    string `json:"userName"`

		// AmountText is the amount exactly as the backend sent it when it
		// arrived as a JSON string. Empty for numeric amounts.
		AmountText string `json:"-"`
	}

	// TransactionUpdate is the set of fields the owner may change on an
	// existing transaction.
	TransactionUpdate struct {
		Type        TxType `json:"type"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Amount      Amount `json:"amount"`
		Date        string `json:"date"`
	}
)

// IncomeCategories and ExpenseCategories are the fixed category vocabulary.
var (
	IncomeCategories  = []string{"Job", "Business", "Other"}
	ExpenseCategories = []string{
		"Food", "Transport", "Education", "Shopping", "Home",
		"Freelance", "Entertainment", "Health", "Investment", "Others",
	}
)

var (
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidCategory  = errors.New("category does not belong to transaction type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyEmail       = errors.New("empty user email")
	ErrDescriptionLimit = errors.New("description too long (max 200 characters)")
)

const dateLayout = "2006-01-02"

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// CategoriesFor returns the allowed categories for a transaction type, or nil
// when the type is unknown.
func CategoriesFor(t TxType) []string {
	switch t {
	case Income:
		return IncomeCategories
	case Expense:
		return ExpenseCategories
	default:
		return nil
	}
}

// ValidCategory reports whether category belongs to the vocabulary of t.
func ValidCategory(t TxType, category string) bool {
	for _, c := range CategoriesFor(t) {
		if c == category {
			return true
		}
	}
	return false
}

// ParseDate parses the date formats the backend is known to return. The
// second result is false when s cannot be parsed.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp returns the transaction date in milliseconds since the epoch.
// Unparseable dates count as the epoch itself.
func (t Transaction) Timestamp() int64 {
	d, ok := ParseDate(t.Date)
	if !ok {
		return 0
	}
	return d.UnixMilli()
}

func validateFields(typ TxType, category string, amount Amount, date, description string) error {
	if !typ.Valid() {
		return ErrInvalidType
	}
	if !ValidCategory(typ, category) {
		return ErrInvalidCategory
	}
	f := float64(amount)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return ErrInvalidAmount
	}
	if _, err := time.Parse(dateLayout, strings.TrimSpace(date)); err != nil {
		return ErrInvalidDate
	}
	if len(description) > 200 {
		return ErrDescriptionLimit
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := validateFields(t.Type, t.Category, t.Amount, t.Date, t.Description); err != nil {
		return err
	}
	if strings.TrimSpace(t.UserEmail) == "" {
		return ErrEmptyEmail
	}
	return nil
}

func (u TransactionUpdate) Validate() error {
	return validateFields(u.Type, u.Category, u.Amount, u.Date, u.Description)
}

// Apply returns t with the update's fields merged in.
func (u TransactionUpdate) Apply(t Transaction) Transaction {
	t.Type = u.Type
	t.Description = u.Description
	t.Category = u.Category
	t.Amount = u.Amount
	t.AmountText = ""
	t.Date = u.Date
	return t
}
