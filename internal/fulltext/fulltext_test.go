package fulltext

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const pageFixture = `<html>
<head><style>.x{}</style><script>var x;</script></head>
<body>
<nav>Home | Papers</nav>
<main>
  <h1>A Paper Title</h1>
  <blockquote class="abstract">We present   a method
  for things.</blockquote>
</main>
<footer>Copyright</footer>
</body></html>`

func TestExtractText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageFixture))
	if err != nil {
		t.Fatalf("goquery: %v", err)
	}

	text := ExtractText(doc, 0)
	if !strings.Contains(text, "We present a method for things.") {
		t.Errorf("text = %q, missing abstract content", text)
	}
	for _, banned := range []string{"var x", "Home |", "Copyright"} {
		if strings.Contains(text, banned) {
			t.Errorf("text contains chrome %q: %q", banned, text)
		}
	}
}

func TestExtractText_MaxChars(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(pageFixture))
	text := ExtractText(doc, 10)
	if len(text) != 10 {
		t.Errorf("len = %d, want 10", len(text))
	}
}

func TestCut_RuneBoundary(t *testing.T) {
	// "résumé" is 8 bytes; a cut inside the 'é' sequence must back off.
	s := "résumé"
	got := cut(s, 2)
	if got != "r" {
		t.Errorf("cut(%q, 2) = %q, want %q", s, got, "r")
	}
	if !utf8.ValidString(got) {
		t.Errorf("cut produced invalid UTF-8: %q", got)
	}
	if cut(s, 100) != s {
		t.Error("cut must be a no-op when the string fits")
	}
	if cut(s, 0) != s {
		t.Error("zero maxChars means no limit")
	}
}
