package core

import "testing"

func TestNormalizeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"primary:2501.12345v2", "2501.12345"},
		{"primary:2501.12345", "2501.12345"},
		{"community:2501.12345V3", "2501.12345"}, // case-insensitive version suffix
		{"2501.00001v10", "2501.00001"},
		{"PRIMARY:ABC.123", "abc.123"},
		{"  primary:2501.12345v2  ", "2501.12345"},
		{"", ""},
	}

	for _, c := range cases {
		if got := NormalizeID(c.in); got != c.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeID_MergesAcrossSourcesAndVersions(t *testing.T) {
	a := NormalizeID("primary:2501.00001v1")
	b := NormalizeID("community:2501.00001")
	if a != b {
		t.Errorf("expected %q and %q to normalize identically, got %q vs %q",
			"primary:2501.00001v1", "community:2501.00001", a, b)
	}
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"primary:2501.12345v2", 2},
		{"primary:2501.12345v10", 10},
		{"primary:2501.12345", 1},
		{"primary:2501.12345v0", 1}, // nonsense version treated as unversioned
		{"", 1},
	}

	for _, c := range cases {
		if got := ParseVersion(c.in); got != c.want {
			t.Errorf("ParseVersion(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
