// Package core holds the domain model shared by the client packages.
//
// This file contains the Amount type. The backend stores amounts as JSON
// numbers, but records created by older clients carry them as strings, so
// decoding accepts both and treats anything non-numeric as zero.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Amount is a transaction amount in the user's currency.
type Amount float64

// ParseAmount converts user input to an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Empty,
// non-numeric, negative and non-finite input is rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, ErrInvalidAmount
	}
	return Amount(f), nil
}

// String formats the amount without trailing zeros, the way it is shown
// and searched in the transaction list.
func (a Amount) String() string {
	return strconv.FormatFloat(float64(a), 'f', -1, 64)
}

func (a Amount) Float64() float64 {
	return float64(a)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// UnmarshalJSON decodes a transaction, keeping the raw text of string
// amounts for search.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	aux := struct {
		*plain
		Amount json.RawMessage `json:"amount"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := t.Amount.UnmarshalJSON(aux.Amount); err != nil {
		return err
	}
	t.AmountText = ""
	if raw := bytes.TrimSpace(aux.Amount); len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, &t.AmountText)
	}
	return nil
}

// SearchAmount is the amount as matched by the list search: the backend's
// own text when it sent one, otherwise the formatted number.
func (t Transaction) SearchAmount() string {
	if t.AmountText != "" {
		return t.AmountText
	}
	return t.Amount.String()
}
