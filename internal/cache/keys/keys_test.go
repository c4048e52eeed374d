package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

var keyRE = regexp.MustCompile(`^[A-Za-z0-9:_=\-]+$`)

func TestSession_UUIDPassesThrough(t *testing.T) {
	id := "4b7c1a2e-9f3d-4c1b-8a57-0f6e2d9c1b3a"
	k := Session(id)
	if k != "overlap-dashboard:session:"+id {
		t.Fatalf("key=%s", k)
	}
	if Session(id) != k {
		t.Fatalf("not deterministic")
	}
}

func TestSession_RewrittenIDsGetHashSuffix(t *testing.T) {
	a := Session("a b")
	b := Session("a\tb")
	if a == b {
		t.Fatalf("ids sanitizing to the same text must still differ: %s", a)
	}
	if !strings.Contains(a, ":h=") {
		t.Fatalf("missing hash suffix: %s", a)
	}
	if !keyRE.MatchString(a) {
		t.Fatalf("key contains disallowed characters: %s", a)
	}
}

func TestSession_UnicodeAndLengthSafety(t *testing.T) {
	k := Session(strings.Repeat("雪Göteborg", 20))
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !keyRE.MatchString(k) {
		t.Fatalf("key contains disallowed characters: %s", k)
	}
	if len(k) > len("overlap-dashboard:session:")+64+len(":h=")+16 {
		t.Fatalf("key too long: %d", len(k))
	}
}
