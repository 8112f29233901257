package listview

import (
	"cmp"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name string
	N    int
}

func testSchema() Schema[row] {
	byN := func(a, b row) int { return cmp.Compare(a.N, b.N) }
	return Schema[row]{
		Haystack: func(r row) string { return strings.Join([]string{r.Name, fmt.Sprint(r.N)}, " ") },
		Sorts: map[string]func(a, b row) int{
			"nAsc":  byN,
			"nDesc": Reverse(byN),
		},
		DefaultSort: "nDesc",
		PageSizes:   []int{6, 9, 12},
		DefaultSize: 6,
	}
}

func rows(n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = row{Name: fmt.Sprintf("Row %d", i+1), N: i + 1}
	}
	return out
}

func TestFilterIsSubsetAndMatches(t *testing.T) {
	items := []row{{"Food", 1}, {"Job", 2}, {"food court", 3}}
	schema := testSchema()

	got := Filter(items, "FOOD", schema.Haystack)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Contains(t, strings.ToLower(schema.Haystack(r)), "food")
	}

	assert.Equal(t, items, Filter(items, "", schema.Haystack))
	assert.Empty(t, Filter(items, "zzz", schema.Haystack))
}

func TestSortIdempotentAndReversible(t *testing.T) {
	schema := testSchema()
	items := []row{{"a", 3}, {"b", 1}, {"c", 2}}

	asc := Sort(items, schema.Sorts["nAsc"])
	assert.Equal(t, []int{1, 2, 3}, []int{asc[0].N, asc[1].N, asc[2].N})
	assert.Equal(t, asc, Sort(asc, schema.Sorts["nAsc"]))

	desc := Sort(items, schema.Sorts["nDesc"])
	for i := range desc {
		assert.Equal(t, asc[len(asc)-1-i], desc[i])
	}
	// input untouched
	assert.Equal(t, 3, items[0].N)
}

func TestPaginateConcatenatesToWhole(t *testing.T) {
	for _, n := range []int{0, 1, 5, 6, 7, 12, 13, 40} {
		for _, size := range []int{1, 6, 9, 12} {
			items := rows(n)
			var all []row
			for p := 1; p <= TotalPages(n, size); p++ {
				all = append(all, Paginate(items, size, p)...)
			}
			if n == 0 {
				assert.Empty(t, all)
				continue
			}
			assert.Equal(t, items, all, "n=%d size=%d", n, size)
		}
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, total, want int
	}{
		{0, 3, 1},
		{-4, 3, 1},
		{2, 3, 2},
		{9, 3, 3},
		{5, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPage(tt.page, tt.total), "page=%d total=%d", tt.page, tt.total)
	}
	assert.Equal(t, 1, TotalPages(0, 6))
	assert.Equal(t, 2, TotalPages(7, 6))
	assert.Equal(t, 1, TotalPages(6, 6))
}

func TestPageNumbers(t *testing.T) {
	render := func(ps []PageNumber) string {
		parts := make([]string, len(ps))
		for i, p := range ps {
			switch {
			case p.IsEllipsis:
				parts[i] = "..."
			case p.IsCurrent:
				parts[i] = fmt.Sprintf("[%d]", p.Number)
			default:
				parts[i] = fmt.Sprint(p.Number)
			}
		}
		return strings.Join(parts, " ")
	}

	tests := []struct {
		current, total int
		want           string
	}{
		{1, 1, "[1]"},
		{1, 2, "[1] 2"},
		{1, 5, "[1] 2 ... 5"},
		{3, 5, "1 2 [3] 4 5"},
		{5, 10, "1 ... 4 [5] 6 ... 10"},
		{10, 10, "1 ... 9 [10]"},
		{2, 4, "1 [2] 3 4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, render(PageNumbers(tt.current, tt.total)), "current=%d total=%d", tt.current, tt.total)
	}
}

func TestListResetsPageOnStateChange(t *testing.T) {
	l := New(testSchema())
	l.SetItems(rows(20))

	reset := map[string]func(){
		"query":    func() { l.SetQuery("row") },
		"sort":     func() { l.SetSort("nAsc") },
		"pageSize": func() { l.SetPageSize(9) },
	}
	for name, change := range reset {
		l.SetPage(3)
		require.Equal(t, 3, l.State().Page)
		change()
		assert.Equal(t, 1, l.State().Page, name)
	}
}

func TestListRejectsUnknownSettings(t *testing.T) {
	l := New(testSchema())
	l.SetSort("bogus")
	assert.Equal(t, "nDesc", l.State().SortKey)
	l.SetPageSize(7)
	assert.Equal(t, 6, l.State().PageSize)
}

func TestListPageAlwaysInRange(t *testing.T) {
	l := New(testSchema())
	for n := 0; n < 30; n++ {
		l.SetItems(rows(n))
		for _, p := range []int{-1, 0, 1, 2, 5, 100} {
			l.SetPage(p)
			v := l.View()
			assert.GreaterOrEqual(t, v.Page, 1)
			assert.LessOrEqual(t, v.Page, max(1, TotalPages(n, 6)))
		}
	}
}

func TestListRemoveReclampsPage(t *testing.T) {
	l := New(testSchema())
	l.SetItems(rows(7))
	l.SetPage(2)
	require.Len(t, l.View().Items, 1)

	removed := l.Remove(func(r row) bool { return r.N == 1 })
	require.True(t, removed)

	v := l.View()
	assert.Equal(t, 6, v.Total)
	assert.Equal(t, 1, v.TotalPages)
	assert.Equal(t, 1, v.Page)
}

func TestListReplace(t *testing.T) {
	l := New(testSchema())
	l.SetItems(rows(3))
	ok := l.Replace(func(r row) bool { return r.N == 2 }, func(r row) row { r.Name = "changed"; return r })
	require.True(t, ok)
	got, found := l.Find(func(r row) bool { return r.N == 2 })
	require.True(t, found)
	assert.Equal(t, "changed", got.Name)
	assert.False(t, l.Replace(func(r row) bool { return r.N == 99 }, func(r row) row { return r }))
}

func TestCompareText(t *testing.T) {
	assert.Negative(t, CompareText("apple", "Banana"))
	assert.Positive(t, CompareText("food", "Education"))
	assert.Zero(t, CompareText("Home", "Home"))
}
