package adapter

import (
	"strings"
	"testing"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    string
		limit int
		mode  string
		want  int
	}{
		{name: "short", in: "hello", limit: 10, want: 1},
		{name: "exact", in: strings.Repeat("a", 10), limit: 10, want: 1},
		{name: "hard cut", in: strings.Repeat("a", 25), limit: 10, want: 3},
		{name: "newline", in: strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6), limit: 10, want: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tc.in, tc.limit, tc.mode)
			if len(got) != tc.want {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tc.want)
			}
			for _, c := range got {
				if n := len([]rune(c)); n > tc.limit {
					t.Fatalf("chunk %q has %d runes", c, n)
				}
			}
		})
	}
}

func TestSplitTextKeepsHTMLTags(t *testing.T) {
	t.Parallel()

	in := "aaaaaa<b>bold</b>"
	got := splitText(in, 8, "HTML")
	if got[0] != "aaaaaa" {
		t.Fatalf("first chunk = %q, want tag kept whole in next chunk", got[0])
	}
	if strings.Join(got, "") != in {
		t.Fatalf("chunks %q lose text", got)
	}
}
