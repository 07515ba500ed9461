package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

// Constraint is a predicate over one offer attribute. The set of kinds is
// closed: Like and Unique. Evaluate returns an empty string when the value
// passes, otherwise a human-readable reason.
type Constraint interface {
	// Evaluate checks value for attribute name against the list of values
	// this attribute currently holds on other active servers.
	Evaluate(name, value string, used []string) string

	// String renders the token form used in admin requests and snapshots.
	String() string

	sealed()
}

// Like matches the attribute value against a full anchored regular
// expression.
type Like struct {
	pattern string
	regex   *regexp.Regexp
}

// NewLike compiles pattern into a Like constraint. The pattern is anchored
// so it must match the whole attribute value.
func NewLike(pattern string) (*Like, error) {
	regex, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid like pattern %q: %w", pattern, err)
	}
	return &Like{pattern: pattern, regex: regex}, nil
}

func (l *Like) Evaluate(name, value string, used []string) string {
	if l.regex.MatchString(value) {
		return ""
	}
	return fmt.Sprintf("%s doesn't match %s", name, l)
}

func (l *Like) String() string { return "like:" + l.pattern }

func (l *Like) sealed() {}

// Unique requires the attribute value to be unused by any other active
// server.
type Unique struct{}

func (u Unique) Evaluate(name, value string, used []string) string {
	for _, v := range used {
		if v == value {
			return fmt.Sprintf("%s is not unique", name)
		}
	}
	return ""
}

func (u Unique) String() string { return "unique" }

func (u Unique) sealed() {}

// Parse parses the token form of a constraint: "like:<pattern>" or "unique".
func Parse(s string) (Constraint, error) {
	switch {
	case s == "unique":
		return Unique{}, nil
	case strings.HasPrefix(s, "like:"):
		return NewLike(strings.TrimPrefix(s, "like:"))
	default:
		return nil, fmt.Errorf("unsupported constraint %q", s)
	}
}

// MustParse is Parse for constraints known valid at compile time; it panics
// on error.
func MustParse(s string) Constraint {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseMap parses an attribute-name to constraint-token-list mapping, the
// shape used by admin requests and the persisted snapshot.
func ParseMap(tokens map[string][]string) (map[string][]Constraint, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	constraints := make(map[string][]Constraint, len(tokens))
	for name, list := range tokens {
		for _, token := range list {
			c, err := Parse(token)
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", name, err)
			}
			constraints[name] = append(constraints[name], c)
		}
	}
	return constraints, nil
}

// FormatMap renders constraints back to their token mapping.
func FormatMap(constraints map[string][]Constraint) map[string][]string {
	if len(constraints) == 0 {
		return nil
	}

	tokens := make(map[string][]string, len(constraints))
	for name, list := range constraints {
		for _, c := range list {
			tokens[name] = append(tokens[name], c.String())
		}
	}
	return tokens
}
