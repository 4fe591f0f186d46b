package models

import (
	"strings"

	dErrors "prodir/pkg/domain-errors"
	pstrings "prodir/pkg/platform/strings"
)

const FieldSkills = "skills"

// editable is the allow-list of fields moderators may change. Anything else
// in a patch is dropped without being written.
var editable = map[string]struct{}{
	"fullName":               {},
	"title":                  {},
	"profession":             {},
	"bio":                    {},
	"category":               {},
	"region":                 {},
	"location":               {},
	"businessLocation":       {},
	"affiliation":            {},
	"institutionAffiliation": {},
	"gender":                 {},
	"specificExpertise":      {},
	"ageAndDOB":              {},
	"availability":           {},
	FieldSkills:              {},
}

const maxFieldLength = 10_000

// IsEditable reports whether key is on the edit allow-list.
func IsEditable(key string) bool {
	_, ok := editable[key]
	return ok
}

// NormalizePatch filters a raw patch down to the allow-list and validates
// value types. Skills may arrive as a comma-separated string or a list and
// are stored as a trimmed, de-duplicated list.
func NormalizePatch(raw map[string]any) (Fields, error) {
	out := Fields{}
	for k, v := range raw {
		if !IsEditable(k) {
			continue
		}
		if k == FieldSkills {
			skills, err := normalizeSkills(v)
			if err != nil {
				return nil, err
			}
			out[k] = skills
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "field "+k+" must be a string")
		}
		if len(s) > maxFieldLength {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "field "+k+" is too long")
		}
		out[k] = strings.TrimSpace(s)
	}
	return out, nil
}

func normalizeSkills(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return pstrings.SplitList(t, ","), nil
	case []string:
		return pstrings.DedupeAndTrim(t), nil
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, dErrors.New(dErrors.CodeInvalidArgument, "skills must be strings")
			}
			list = append(list, s)
		}
		return pstrings.DedupeAndTrim(list), nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "skills must be a string or a list of strings")
	}
}
