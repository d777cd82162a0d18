package s3store

import "testing"

func TestNormalizeObjectKey(t *testing.T) {
	cases := []struct{ in, want string }{
		{"a/b/c", "a/b/c"},
		{"/a/b", "a/b"},
		{"a//b", "a/b"},
		{"a\\b", "a/b"},
		{"  a/b  ", "a/b"},
		{"../etc/passwd", ""},
		{"", ""},
		{"a/./b", "a/b"},
	}
	for _, c := range cases {
		if got := normalizeObjectKey(c.in); got != c.want {
			t.Fatalf("normalizeObjectKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBuildQueryCanonical(t *testing.T) {
	q := buildQuery(map[string]string{
		"list-type":          "2",
		"prefix":             "worlds/prod w1/",
		"continuation-token": "",
	})
	// Empty values dropped, keys sorted, space escaped as %20.
	if q != "list-type=2&prefix=worlds%2Fprod%20w1%2F" {
		t.Fatalf("buildQuery = %q", q)
	}
}

func TestQueryEscapeSigV4Rules(t *testing.T) {
	if got := queryEscape("a b~c"); got != "a%20b~c" {
		t.Fatalf("queryEscape = %q", got)
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New("", "bucket", "ak", "sk"); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}
