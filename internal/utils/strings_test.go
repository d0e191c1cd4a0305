package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 0, 42},
		{"", 10, 10},
		{"x", 5, 5},
		{"-7", 0, -7},
		{"3.5", 9, 9},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestParseID(t *testing.T) {
	if id, ok := ParseID("17"); !ok || id != 17 {
		t.Fatalf("ParseID(17) = (%d, %v)", id, ok)
	}
	for _, bad := range []string{"", "0", "-1", "abc", "1.5", "18446744073709551616"} {
		if _, ok := ParseID(bad); ok {
			t.Fatalf("ParseID(%q) accepted", bad)
		}
	}
}
