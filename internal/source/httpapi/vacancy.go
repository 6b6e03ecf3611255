package httpapi

import (
	"strings"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/textnorm"

	"github.com/mitchellh/mapstructure"
)

const publishedLayout = "2006-01-02T15:04:05-0700"

type vacancy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Area struct {
		Name string `json:"name"`
	} `json:"area"`
	Employer struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"employer"`
	Experience struct {
		ID string `json:"id"`
	} `json:"experience"`
	AlternateURL string `json:"alternate_url"`
	Description  string `json:"description"`
	KeySkills    []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
	Snippet struct {
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	} `json:"snippet"`
	PublishedAt string `json:"published_at"`
}

func decodeVacancies(items []map[string]any) ([]*vacancy, error) {
	var vacancies []*vacancy

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(items); err != nil {
		return nil, err
	}

	return vacancies, nil
}

func (v *vacancy) toPosting() domain.Posting {
	description := v.Description
	if strings.TrimSpace(description) == "" {
		description = strings.TrimSpace(v.Snippet.Requirement + "\n" + v.Snippet.Responsibility)
	}

	skills := make([]string, 0, len(v.KeySkills))
	for _, s := range v.KeySkills {
		if name := strings.TrimSpace(s.Name); name != "" {
			skills = append(skills, name)
		}
	}

	p := domain.Posting{
		ID:          v.ID,
		Title:       strings.TrimSpace(v.Name),
		Company:     strings.TrimSpace(v.Employer.Name),
		Description: textnorm.StripHTML(description),
		Location:    strings.TrimSpace(v.Area.Name),
		URL:         v.AlternateURL,
		Skills:      skills,
		Experience:  experienceRange(v.Experience.ID),
	}

	if at, err := time.Parse(publishedLayout, v.PublishedAt); err == nil {
		p.PostedAt = at.UTC()
	} else if at, err := time.Parse(time.RFC3339, v.PublishedAt); err == nil {
		p.PostedAt = at.UTC()
	}

	return p
}

var experienceIDs = map[string]domain.ExperienceRange{
	"noExperience": {Min: 0, Max: 1},
	"between1And3": {Min: 1, Max: 3},
	"between3And6": {Min: 3, Max: 6},
	"moreThan6":    {Min: 6},
}

func experienceRange(id string) domain.ExperienceRange {
	return experienceIDs[id]
}

// experienceID picks the upstream bucket that contains the range minimum.
func experienceID(r domain.ExperienceRange) string {
	switch {
	case !r.Specified():
		return ""
	case r.Min < 1:
		return "noExperience"
	case r.Min < 3:
		return "between1And3"
	case r.Min < 6:
		return "between3And6"
	default:
		return "moreThan6"
	}
}
