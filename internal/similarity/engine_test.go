package similarity

import (
	"math"
	"reflect"
	"testing"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/textnorm"
)

func newEngine(threshold int, gate bool, skills ...string) *Engine {
	return New(Config{
		Threshold:                 threshold,
		SkillsBonus:               DefaultSkillsBonus,
		ExperienceOverlapRequired: gate,
	}, textnorm.NewLexicon(skills))
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		engine  *Engine
		resume  domain.Resume
		posting domain.Posting
		expect  int
		capped  bool
	}{
		{
			name:   "python and sql developer",
			engine: newEngine(70, true, "python", "sql"),
			resume: domain.Resume{
				RawText:         "Python developer with SQL experience, 3 years",
				Skills:          []string{"python", "sql"},
				ExperienceYears: 3,
			},
			posting: domain.Posting{
				Description: "Looking for a Python developer with SQL experience",
				Experience:  domain.ExperienceRange{Min: 2, Max: 5},
			},
			expect: 100,
		},
		{
			name:   "experience gate caps identical text",
			engine: newEngine(70, true, "python", "sql"),
			resume: domain.Resume{
				RawText:         "Looking for a Python developer with SQL experience",
				Skills:          []string{"python", "sql"},
				ExperienceYears: 2,
			},
			posting: domain.Posting{
				Description: "Looking for a Python developer with SQL experience",
				Experience:  domain.ExperienceRange{Min: 8, Max: 10},
			},
			expect: 69,
			capped: true,
		},
		{
			name:   "gate disabled",
			engine: newEngine(70, false, "python", "sql"),
			resume: domain.Resume{
				RawText:         "Looking for a Python developer with SQL experience",
				Skills:          []string{"python", "sql"},
				ExperienceYears: 2,
			},
			posting: domain.Posting{
				Description: "Looking for a Python developer with SQL experience",
				Experience:  domain.ExperienceRange{Min: 8, Max: 10},
			},
			expect: 100,
		},
		{
			name:   "gate with zero threshold floors at zero",
			engine: newEngine(0, true),
			resume: domain.Resume{RawText: "go", ExperienceYears: 1},
			posting: domain.Posting{
				Description: "go",
				Experience:  domain.ExperienceRange{Min: 3},
			},
			expect: 0,
			capped: true,
		},
		{
			name:    "text only",
			engine:  newEngine(70, true),
			resume:  domain.Resume{RawText: "go kubernetes docker"},
			posting: domain.Posting{Description: "go kubernetes terraform"},
			expect:  67,
		},
		{
			name:    "sublinear term frequency",
			engine:  newEngine(70, true),
			resume:  domain.Resume{RawText: "python python sql"},
			posting: domain.Posting{Description: "python sql"},
			expect:  97,
		},
		{
			name:   "empty description uses skills fraction",
			engine: newEngine(75, true),
			resume: domain.Resume{Skills: []string{"go", "java", "sql"}},
			posting: domain.Posting{
				Skills: []string{"Go", "Rust", "Java", "SQL"},
			},
			expect: 75,
		},
		{
			name:    "empty description without resume skills",
			engine:  newEngine(70, true),
			resume:  domain.Resume{RawText: "go rust"},
			posting: domain.Posting{Skills: []string{"go"}},
			expect:  0,
		},
		{
			name:    "empty description without posting skills",
			engine:  newEngine(70, true),
			resume:  domain.Resume{Skills: []string{"go"}},
			posting: domain.Posting{Description: "  the a of "},
			expect:  0,
		},
		{
			name:    "empty resume text",
			engine:  newEngine(70, true),
			resume:  domain.Resume{},
			posting: domain.Posting{Description: "go developer"},
			expect:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.engine.Score(&tt.resume, &tt.posting)
			if got.Score != tt.expect {
				t.Fatalf("expected score %d, got %d (%+v)", tt.expect, got.Score, got.Breakdown)
			}
			if got.Breakdown.Capped != tt.capped {
				t.Fatalf("expected capped=%v, got %v", tt.capped, got.Breakdown.Capped)
			}
		})
	}
}

func TestThresholdBoundary(t *testing.T) {
	t.Parallel()

	resume := &domain.Resume{Skills: []string{"go", "java", "sql"}}
	posting := &domain.Posting{Skills: []string{"go", "rust", "java", "sql"}}

	at := newEngine(75, true)
	if res := at.Score(resume, posting); !at.Qualifies(res.Score) {
		t.Fatalf("score %d should qualify at threshold 75", res.Score)
	}

	above := newEngine(76, true)
	if res := above.Score(resume, posting); above.Qualifies(res.Score) {
		t.Fatalf("score %d should not qualify at threshold 76", res.Score)
	}
}

func TestScoreBreakdown(t *testing.T) {
	t.Parallel()

	engine := newEngine(70, true, "python", "sql", "docker")
	resume := &domain.Resume{
		RawText:         "python sql",
		Skills:          []string{"python", "sql"},
		ExperienceYears: 4,
	}
	posting := &domain.Posting{
		Description: "python sql docker",
		Skills:      []string{"Kubernetes"},
		Experience:  domain.ExperienceRange{Min: 3},
	}

	res := engine.Score(resume, posting)
	b := res.Breakdown

	if expect := []string{"python", "sql"}; !reflect.DeepEqual(b.MatchedSkills, expect) {
		t.Fatalf("expected matched %q, got %q", expect, b.MatchedSkills)
	}
	if expect := []string{"docker", "kubernetes"}; !reflect.DeepEqual(b.MissingSkills, expect) {
		t.Fatalf("expected missing %q, got %q", expect, b.MissingSkills)
	}
	if b.SkillsFraction != 0.5 || b.SkillsBonus != 15 {
		t.Fatalf("unexpected skills part: %+v", b)
	}
	if !b.ExperienceOK {
		t.Fatalf("expected experience to pass")
	}
	if math.Abs(b.Text-100*2/math.Sqrt(6)) > 1e-9 {
		t.Fatalf("unexpected text part %v", b.Text)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	t.Parallel()

	engine := newEngine(70, true, "go", "kubernetes", "grpc")
	resume := &domain.Resume{
		RawText:         "Senior Go engineer. Kubernetes operators, gRPC services, 6 years. Go go go.",
		Skills:          []string{"go", "grpc", "kubernetes"},
		ExperienceYears: 6,
	}
	posting := &domain.Posting{
		Description: "We build gRPC services in Go on Kubernetes; observability and on-call.",
		Skills:      []string{"Go", "PostgreSQL"},
		Experience:  domain.ExperienceRange{Min: 3, Max: 6},
	}

	first := engine.Score(resume, posting)
	for i := 0; i < 20; i++ {
		if got := engine.Score(resume, posting); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: expected %+v, got %+v", i, first, got)
		}
	}
}

func TestCosine(t *testing.T) {
	t.Parallel()

	if got := Cosine([]string{"go"}, []string{"go"}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := Cosine([]string{"go"}, []string{"rust"}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Cosine(nil, []string{"rust"}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestAliasedSkillsMatch(t *testing.T) {
	t.Parallel()

	e := newEngine(70, true, "go|golang", "kubernetes|k8s")
	res := e.Score(
		&domain.Resume{RawText: "Go developer", Skills: []string{"go", "kubernetes"}},
		&domain.Posting{Skills: []string{"Golang", "K8s"}},
	)

	if expect := []string{"go", "kubernetes"}; !reflect.DeepEqual(res.Breakdown.MatchedSkills, expect) {
		t.Fatalf("expected aliases to match %q, got %q (missing %q)", expect, res.Breakdown.MatchedSkills, res.Breakdown.MissingSkills)
	}
	if res.Score != 100 {
		t.Fatalf("expected skills-only score 100, got %d", res.Score)
	}
}
