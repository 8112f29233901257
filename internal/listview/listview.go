// Package listview holds the search, sort and pagination state shared by the
// transaction and user tables.
package listview

import (
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// State is the user-controlled part of a table view.
type State struct {
	Query    string
	SortKey  string
	PageSize int
	Page     int
}

// Schema describes how a list of T is searched and ordered.
type Schema[T any] struct {
	// Haystack returns the searchable text of an item. Matching is a
	// case-insensitive substring test against it.
	Haystack func(T) string
	// Sorts maps a sort key to a three-way comparator.
	Sorts       map[string]func(a, b T) int
	DefaultSort string
	PageSizes   []int
	DefaultSize int
}

// List is a collection of items together with its view state. A List is not
// safe for concurrent use; controllers guard it with their own mutex.
type List[T any] struct {
	schema Schema[T]
	items  []T
	state  State
}

// Page is one rendered page of a List.
type Page[T any] struct {
	Items      []T
	Query      string
	SortKey    string
	PageSize   int
	Page       int
	TotalPages int
	// Matched counts items after filtering, Total counts all loaded items.
	Matched int
	Total   int
	Numbers []PageNumber
}

// PageNumber is one entry of the pager. Ellipsis entries carry Number 0.
type PageNumber struct {
	Number     int
	IsCurrent  bool
	IsEllipsis bool
}

func New[T any](schema Schema[T]) *List[T] {
	return &List[T]{
		schema: schema,
		state:  State{
			SortKey:  schema.DefaultSort,
			PageSize: schema.DefaultSize,
			Page:     1,
		},
	}
}

// State returns the current view state.
func (l *List[T]) State() State { return l.state }

// Items returns a copy of every loaded item in load order.
func (l *List[T]) Items() []T { return slices.Clone(l.items) }

func (l *List[T]) Len() int { return len(l.items) }

// SetItems replaces the loaded items and re-clamps the page.
func (l *List[T]) SetItems(items []T) {
	l.items = slices.Clone(items)
	l.clamp()
}

func (l *List[T]) SetQuery(q string) {
	l.state.Query = q
	l.state.Page = 1
}

// SetSort selects a sort key. Unknown keys select the default.
func (l *List[T]) SetSort(key string) {
	if _, ok := l.schema.Sorts[key]; !ok {
		key = l.schema.DefaultSort
	}
	l.state.SortKey = key
	l.state.Page = 1
}

// SetPageSize selects a page size. Sizes outside the allowed set select the default.
func (l *List[T]) SetPageSize(size int) {
	if size <= 0 || (len(l.schema.PageSizes) > 0 && !slices.Contains(l.schema.PageSizes, size)) {
		size = l.schema.DefaultSize
	}
	l.state.PageSize = size
	l.state.Page = 1
}

func (l *List[T]) SetPage(page int) {
	l.state.Page = page
	l.clamp()
}

// Find returns the first item matching pred.
func (l *List[T]) Find(pred func(T) bool) (T, bool) {
	i := slices.IndexFunc(l.items, pred)
	if i < 0 {
		var zero T
		return zero, false
	}
	return l.items[i], true
}

// Replace applies fn to every item matching pred and reports whether any matched.
func (l *List[T]) Replace(pred func(T) bool, fn func(T) T) bool {
	found := false
	for i, it := range l.items {
		if pred(it) {
			l.items[i] = fn(it)
			found = true
		}
	}
	return found
}

// Remove drops every item matching pred, then re-clamps the page.
func (l *List[T]) Remove(pred func(T) bool) bool {
	n := len(l.items)
	l.items = slices.DeleteFunc(l.items, pred)
	l.clamp()
	return len(l.items) != n
}

// View filters, sorts and paginates the items for the current state.
func (l *List[T]) View() Page[T] {
	visible := Sort(Filter(l.items, l.state.Query, l.schema.Haystack), l.schema.Sorts[l.state.SortKey])
	l.clamp()
	total := TotalPages(len(visible), l.state.PageSize)
	return Page[T]{
		Items:      Paginate(visible, l.state.PageSize, l.state.Page),
		Query:      l.state.Query,
		SortKey:    l.state.SortKey,
		PageSize:   l.state.PageSize,
		Page:       l.state.Page,
		TotalPages: total,
		Matched:    len(visible),
		Total:      len(l.items),
		Numbers:    PageNumbers(l.state.Page, total),
	}
}

func (l *List[T]) clamp() {
	n := len(Filter(l.items, l.state.Query, l.schema.Haystack))
	l.state.Page = ClampPage(l.state.Page, TotalPages(n, l.state.PageSize))
}

// Filter keeps the items whose haystack contains q, ignoring case. An empty
// query keeps everything.
func Filter[T any](items []T, q string, haystack func(T) string) []T {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" || haystack == nil {
		return slices.Clone(items)
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(haystack(it)), q) {
			out = append(out, it)
		}
	}
	return out
}

// Sort returns a stably sorted copy of items. A nil comparator keeps the order.
func Sort[T any](items []T, cmp func(a, b T) int) []T {
	out := slices.Clone(items)
	if cmp != nil {
		slices.SortStableFunc(out, cmp)
	}
	return out
}

// Paginate returns page (1-based) of size pageSize, clamped to the valid range.
func Paginate[T any](items []T, pageSize, page int) []T {
	if pageSize <= 0 {
		return slices.Clone(items)
	}
	page = ClampPage(page, TotalPages(len(items), pageSize))
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := min(start+pageSize, len(items))
	return slices.Clone(items[start:end])
}

// TotalPages returns ceil(n/pageSize), never less than 1.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}

// ClampPage keeps page within [1, total].
func ClampPage(page, total int) int {
	if total < 1 {
		total = 1
	}
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}

// PageNumbers builds the pager: the current page with one neighbour on each
// side, plus the first and last pages, with an ellipsis for any gap.
func PageNumbers(current, total int) []PageNumber {
	if total < 1 {
		total = 1
	}
	current = ClampPage(current, total)
	start := max(1, current-1)
	end := min(total, current+1)

	var pages []PageNumber
	if start > 1 {
		pages = append(pages, PageNumber{Number: 1})
		if start > 2 {
			pages = append(pages, PageNumber{IsEllipsis: true})
		}
	}
	for i := start; i <= end; i++ {
		pages = append(pages, PageNumber{Number: i, IsCurrent: i == current})
	}
	if end < total {
		if end < total-1 {
			pages = append(pages, PageNumber{IsEllipsis: true})
		}
		pages = append(pages, PageNumber{Number: total})
	}
	return pages
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.English)
)

// CompareText orders strings the way a browser's localeCompare does for
// English text.
func CompareText(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

// Reverse flips a comparator.
func Reverse[T any](cmp func(a, b T) int) func(a, b T) int {
	return func(a, b T) int { return cmp(b, a) }
}
