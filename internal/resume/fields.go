package resume

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spigell/job-seeker/internal/domain"
)

const maxExperienceYears = 60

var (
	experienceRe = regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d+)?)\s*\+?\s*(?:years?|yrs?)\b`)
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe      = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	linkedInRe   = regexp.MustCompile(`(?i)linkedin\.com/in/[\w-]+`)
	gitHubRe     = regexp.MustCompile(`(?i)github\.com/[\w-]+`)
)

// extractExperienceYears returns the largest plausible "N years" mention.
// Fractions are truncated.
func extractExperienceYears(text string) int {
	best := 0
	for _, m := range experienceRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		years := int(math.Floor(v))
		if years > maxExperienceYears {
			continue
		}
		best = max(best, years)
	}
	return best
}

func extractContact(text string) domain.Contact {
	var c domain.Contact

	c.Email = emailRe.FindString(text)

	for _, candidate := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range candidate {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits >= 10 && digits <= 15 {
			c.Phone = strings.TrimSpace(candidate)
			break
		}
	}

	if m := linkedInRe.FindString(text); m != "" {
		c.LinkedIn = "https://" + strings.ToLower(m[:len("linkedin.com")]) + m[len("linkedin.com"):]
	}
	if m := gitHubRe.FindString(text); m != "" {
		c.GitHub = "https://" + strings.ToLower(m[:len("github.com")]) + m[len("github.com"):]
	}

	return c
}
