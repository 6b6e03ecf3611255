package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "lower-cases and drops stopwords",
			input:  "The Python and SQL developer",
			expect: []string{"python", "sql", "developer"},
		},
		{
			name:   "keeps plus and hash",
			input:  "C++, C# and F#!",
			expect: []string{"c++", "c#", "f#"},
		},
		{
			name:   "drops single rune tokens",
			input:  "a b c go",
			expect: []string{"go"},
		},
		{
			name:   "collapses punctuation",
			input:  "node.js/react---redux",
			expect: []string{"node", "js", "react", "redux"},
		},
		{
			name:   "empty input",
			input:  "",
			expect: []string{},
		},
		{
			name:   "binary garbage",
			input:  "\x00\x01\x02\xff\xfe",
			expect: []string{},
		},
		{
			name:   "non latin letters",
			input:  "Разработчик Go",
			expect: []string{"разработчик", "go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.input)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	input := "Senior Go engineer; Kubernetes, gRPC & PostgreSQL. 5+ years."
	first := Normalize(input)
	for i := 0; i < 10; i++ {
		if got := Normalize(input); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: expected %q, got %q", i, first, got)
		}
	}
}

func TestPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect []string
	}{
		{input: "Machine Learning", expect: []string{"machine", "learning"}},
		{input: "go to market", expect: []string{"go", "to", "market"}},
		{input: "C", expect: []string{"c"}},
		{input: "Node.js", expect: []string{"node", "js"}},
		{input: "  ", expect: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := Phrase(tt.input); !reflect.DeepEqual(got, tt.expect) {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "plain text untouched",
			input:  "  just text  ",
			expect: "just text",
		},
		{
			name:   "paragraphs and lists",
			input:  "<p>We need <strong>Python</strong></p><ul><li>SQL</li><li>Docker</li></ul>",
			expect: "We need Python\nSQL\nDocker",
		},
		{
			name:   "scripts removed",
			input:  "<div>Go<script>alert(1)</script></div>",
			expect: "Go",
		},
		{
			name:   "entities decoded",
			input:  "R&amp;D team",
			expect: "R&D team",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripHTML(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
