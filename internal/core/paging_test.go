package core

import (
	"testing"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		name                       string
		n, page, perPage           int
		wantPage, wantPages, first int
		wantLen                    int
	}{
		{"first page", 45, 1, 20, 1, 3, 1, 20},
		{"last partial page", 45, 3, 20, 3, 3, 41, 5},
		{"page past end clamps", 45, 9, 20, 3, 3, 41, 5},
		{"page below one clamps", 45, -2, 20, 1, 3, 1, 20},
		{"default per page", 45, 2, 0, 2, 3, 21, 20},
		{"per page capped", 250, 1, 1000, 1, 3, 1, 100},
		{"empty", 0, 1, 20, 1, 1, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Paginate(seq(tc.n), tc.page, tc.perPage)
			if p.Page != tc.wantPage || p.TotalPages != tc.wantPages || len(p.Items) != tc.wantLen {
				t.Fatalf("got page=%d pages=%d len=%d", p.Page, p.TotalPages, len(p.Items))
			}
			if tc.wantLen > 0 && p.Items[0] != tc.first {
				t.Fatalf("first item = %d, want %d", p.Items[0], tc.first)
			}
			if tc.wantLen > 0 && p.From() != tc.first {
				t.Fatalf("From = %d", p.From())
			}
		})
	}

	p := Paginate(seq(45), 2, 20)
	if !p.HasPrev() || !p.HasNext() || p.Prev() != 1 || p.Next() != 3 || p.To() != 40 {
		t.Fatalf("navigation wrong: %+v", p)
	}
	empty := Paginate([]int{}, 1, 20)
	if empty.HasPrev() || empty.HasNext() || empty.From() != 0 || empty.To() != 0 {
		t.Fatalf("empty page navigation wrong")
	}
}

func TestMatchesQuery(t *testing.T) {
	cases := []struct {
		q      string
		fields []string
		want   bool
	}{
		{"", []string{"anything"}, true},
		{"  ", nil, true},
		{"acme", []string{"ACME Corp", "INV-1"}, true},
		{"acme inv-1", []string{"ACME Corp", "INV-1"}, true},
		{"acme inv-2", []string{"ACME Corp", "INV-1"}, false},
		{"globex", []string{"ACME Corp"}, false},
	}
	for _, tc := range cases {
		if got := MatchesQuery(tc.q, tc.fields...); got != tc.want {
			t.Fatalf("MatchesQuery(%q, %v) = %v", tc.q, tc.fields, got)
		}
	}
}

func TestFilterAndSortBy(t *testing.T) {
	even := Filter(seq(10), func(n int) bool { return n%2 == 0 })
	if len(even) != 5 || even[0] != 2 || even[4] != 10 {
		t.Fatalf("filter = %v", even)
	}

	type row struct {
		name string
		amt  int64
	}
	rows := []row{{"b", 2}, {"a", 2}, {"c", 5}}
	SortBy(rows, func(r row) int64 { return r.amt }, true)
	if rows[0].name != "c" || rows[1].name != "b" || rows[2].name != "a" {
		t.Fatalf("sort desc must be stable: %v", rows)
	}
	SortBy(rows, func(r row) string { return r.name }, false)
	if rows[0].name != "a" {
		t.Fatalf("sort asc = %v", rows)
	}
}
