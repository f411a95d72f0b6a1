package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	for in, want := range map[string]int{"": 9, "42": 42, "-13": -13, "x": 9, " 42": 9, "999999999999999999999999": 9} {
		if got := AtoiDefault(in, 9); got != want {
			t.Fatalf("AtoiDefault(%q, 9) = %d; want %d", in, got, want)
		}
	}
}

func TestPage(t *testing.T) {
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, DefaultPageSize},
		{"3", "10", 3, 10},
		{"0", "-5", 1, DefaultPageSize},
		{"abc", "1000", 1, MaxPageSize},
	}
	for _, tc := range cases {
		p, s := Page(tc.page, tc.size)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("Page(%q,%q)=(%d,%d) want (%d,%d)", tc.page, tc.size, p, s, tc.wantPage, tc.wantSize)
		}
	}
}

func TestTotalPagesAndOffset(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{45, 20, 3},
		{10, 0, 0},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d)=%d want %d", tc.total, tc.size, got, tc.want)
		}
	}
	if got := Offset(3, 10); got != 20 {
		t.Fatalf("Offset(3,10)=%d", got)
	}
}
