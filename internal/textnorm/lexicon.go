package textnorm

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSkills is used when no lexicon is configured.
var DefaultSkills = []string{
	// languages
	"python", "java", "javascript", "typescript", "c++", "c#", "ruby", "go|golang",
	"rust", "php", "swift", "kotlin", "scala", "matlab", "perl", "shell", "bash",
	"powershell", "sql", "html", "css", "sass",
	// frameworks
	"react", "angular", "vue", "django", "flask", "fastapi", "spring", "spring boot",
	"node.js|nodejs", "express", "rails", "laravel", "asp.net", "jquery", "bootstrap",
	"tailwind", "tensorflow", "pytorch", "keras", "scikit-learn", "pandas", "numpy",
	"opencv", "grpc", "graphql",
	// platforms
	"git", "gitlab", "docker", "kubernetes|k8s", "jenkins", "terraform", "ansible", "aws",
	"azure", "gcp", "heroku", "firebase", "mongodb", "mysql", "postgresql|postgres", "redis",
	"elasticsearch", "kafka", "rabbitmq", "nginx", "linux", "android", "ios",
	"react native", "flutter",
	// data
	"machine learning", "deep learning", "data science", "data analysis",
	"natural language processing|nlp", "computer vision", "big data", "hadoop", "spark",
	"tableau", "power bi", "excel", "statistics",
}

// AliasSep separates a canonical skill name from its aliases in a lexicon
// entry, as in "go|golang".
const AliasSep = "|"

// Lexicon matches multi-word skill phrases against token sequences. Aliases
// match as their canonical skill.
type Lexicon struct {
	byFirst   map[string][][]string
	canonical map[string]string
	size      int
}

// NewLexicon builds a lexicon from raw skill entries. Names are normalized
// with Phrase; empty names and phrases already known are ignored.
func NewLexicon(skills []string) *Lexicon {
	l := &Lexicon{
		byFirst:   make(map[string][][]string),
		canonical: make(map[string]string),
	}
	known := make(map[string]struct{}, len(skills))

	for _, entry := range skills {
		names := strings.Split(entry, AliasSep)
		canon := Canonical(names[0])
		if canon == "" {
			continue
		}
		known[canon] = struct{}{}

		for _, name := range names {
			tokens := Phrase(name)
			if len(tokens) == 0 {
				continue
			}
			key := Join(tokens)
			if _, ok := l.canonical[key]; ok {
				continue
			}
			l.canonical[key] = canon
			l.byFirst[tokens[0]] = append(l.byFirst[tokens[0]], tokens)
		}
	}
	l.size = len(known)

	return l
}

func DefaultLexicon() *Lexicon {
	return NewLexicon(DefaultSkills)
}

func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return l.size
}

// Match returns the sorted canonical names of every lexicon phrase that
// occurs as a contiguous run in tokens.
func (l *Lexicon) Match(tokens []string) []string {
	found := make(map[string]struct{})
	if l == nil {
		return []string{}
	}

	for i, tok := range tokens {
		for _, phrase := range l.byFirst[tok] {
			if i+len(phrase) > len(tokens) {
				continue
			}
			if slices.Equal(tokens[i:i+len(phrase)], phrase) {
				found[l.canonical[Join(phrase)]] = struct{}{}
			}
		}
	}

	return sortedKeys(found)
}

// MatchText is Match over Phrase(text).
func (l *Lexicon) MatchText(text string) []string {
	return l.Match(Phrase(text))
}

// Canonical returns the normalized form of a skill name.
func Canonical(skill string) string {
	return Join(Phrase(skill))
}

// Canonical is like the package-level Canonical but resolves aliases to the
// name Match reports.
func (l *Lexicon) Canonical(skill string) string {
	c := Canonical(skill)
	if l == nil {
		return c
	}
	if canon, ok := l.canonical[c]; ok {
		return canon
	}
	return c
}

// CanonicalSet is like the package-level CanonicalSet but resolves aliases.
func (l *Lexicon) CanonicalSet(skills []string) []string {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		if c := l.Canonical(s); c != "" {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// CanonicalSet normalizes skill names into a sorted set.
func CanonicalSet(skills []string) []string {
	set := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		if c := Canonical(s); c != "" {
			set[c] = struct{}{}
		}
	}
	return sortedKeys(set)
}

type lexiconFile struct {
	Skills  []string            `yaml:"skills"`
	Aliases map[string][]string `yaml:"aliases"`
}

// LoadLexiconFile reads a YAML document that is either a plain list of skills
// or a mapping with a "skills" list and an "aliases" mapping from canonical
// names to their aliases. Aliases are returned as AliasSep entries.
func LoadLexiconFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skills lexicon %q: %w", path, err)
	}

	var skills []string
	if err := yaml.Unmarshal(data, &skills); err != nil {
		var doc lexiconFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing skills lexicon %q: %w", path, err)
		}
		skills = doc.Skills

		canon := make([]string, 0, len(doc.Aliases))
		for name := range doc.Aliases {
			canon = append(canon, name)
		}
		slices.Sort(canon)
		for _, name := range canon {
			skills = append(skills, strings.Join(append([]string{name}, doc.Aliases[name]...), AliasSep))
		}
	}

	if len(skills) == 0 {
		return nil, fmt.Errorf("skills lexicon %q has no skills", path)
	}

	return skills, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
