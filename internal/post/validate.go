package post

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tanakadamon1/castchat-sub000/internal/apperr"
	"github.com/tanakadamon1/castchat-sub000/internal/tag"
)

const (
	MaxImages          = 5
	maxParticipantsCap = 100
)

var (
	languagePattern = regexp.MustCompile(`^[a-z]{2}$`)
	validPlatforms  = map[string]bool{"pc": true, "quest": true, "ios": true, "android": true}
)

func runeLenBetween(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}

// validateInput checks and normalizes in. current is nil on create; on
// update the date rules are evaluated against the merged values.
func validateInput(in *Input, current *Post, now time.Time) error {
	creating := current == nil

	if in.Title != nil {
		*in.Title = strings.TrimSpace(*in.Title)
		if !runeLenBetween(*in.Title, 5, 100) {
			return apperr.Validation("title must be 5-100 characters")
		}
	} else if creating {
		return apperr.Validation("title is required")
	}

	if in.Description != nil {
		*in.Description = strings.TrimSpace(*in.Description)
		if !runeLenBetween(*in.Description, 10, 5000) {
			return apperr.Validation("description must be 10-5000 characters")
		}
	} else if creating {
		return apperr.Validation("description is required")
	}

	if in.Requirements != nil && utf8.RuneCountInString(*in.Requirements) > 2000 {
		return apperr.Validation("requirements must be at most 2000 characters")
	}

	if in.MaxParticipants != nil && (*in.MaxParticipants < 1 || *in.MaxParticipants > maxParticipantsCap) {
		return apperr.Validation("max participants must be between 1 and 100")
	}

	deadline, eventDate := in.Deadline, in.EventDate
	if !creating {
		if deadline == nil {
			deadline = current.Deadline
		}
		if eventDate == nil {
			eventDate = current.EventDate
		}
	}
	if in.Deadline != nil && !in.Deadline.After(now) {
		return apperr.Validation("deadline must be in the future")
	}
	if deadline != nil && eventDate != nil && !deadline.Before(*eventDate) {
		return apperr.Validation("deadline must be before the event date")
	}

	if in.Platforms != nil {
		platforms, err := normalizePlatforms(*in.Platforms)
		if err != nil {
			return err
		}
		*in.Platforms = platforms
	}

	if in.Languages != nil {
		langs := make([]string, 0, len(*in.Languages))
		seen := map[string]bool{}
		for _, l := range *in.Languages {
			l = strings.ToLower(strings.TrimSpace(l))
			if !languagePattern.MatchString(l) {
				return apperr.Validation("languages must be two-letter codes")
			}
			if !seen[l] {
				seen[l] = true
				langs = append(langs, l)
			}
		}
		*in.Languages = langs
	}

	if in.Tags != nil {
		tags, err := tag.NormalizeAll(*in.Tags)
		if err != nil {
			return err
		}
		*in.Tags = tags
	}

	if in.Status != nil && *in.Status != StatusDraft && *in.Status != StatusOpen {
		return apperr.Validation("status must be draft or open")
	}
	return nil
}

func normalizePlatforms(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if !validPlatforms[p] {
			return nil, apperr.Validation("platform \"" + p + "\" is not supported").
				WithContext(map[string]interface{}{"platform": p})
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
