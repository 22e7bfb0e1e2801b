package funnel

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Wildcard is the option value dashboards historically appended to category
// lists to mean "do not restrict". It is only recognized by ParseSelection.
const Wildcard = "all"

// Selection is either AllOf (accept every value) or SubsetOf a set of values.
// The zero value is an empty subset and matches nothing.
type Selection struct {
	all    bool
	values map[string]struct{}
}

// All returns the wildcard selection.
func All() Selection { return Selection{all: true} }

// Subset returns a selection accepting exactly the given values.
func Subset(values ...string) Selection {
	s := Selection{values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.values[v] = struct{}{}
	}
	return s
}

// ParseSelection converts a flat option list into a Selection. A list that
// contains the Wildcard value is the wildcard, whatever else it contains.
func ParseSelection(values []string) Selection {
	for _, v := range values {
		if v == Wildcard {
			return All()
		}
	}
	return Subset(values...)
}

func (s Selection) IsAll() bool { return s.all }

// Contains reports whether v passes the selection.
func (s Selection) Contains(v string) bool {
	if s.all {
		return true
	}
	_, ok := s.values[v]
	return ok
}

// Len is the number of selected values; meaningless for the wildcard.
func (s Selection) Len() int { return len(s.values) }

// Values returns the selected values sorted; nil for the wildcard.
func (s Selection) Values() []string {
	if s.all {
		return nil
	}
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Selection) String() string {
	if s.all {
		return "*"
	}
	return "{" + strings.Join(s.Values(), ",") + "}"
}

type selectionJSON struct {
	All    bool     `json:"all,omitempty"`
	Values []string `json:"values"`
}

func (s Selection) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal(selectionJSON{All: true})
	}
	vals := s.Values()
	if vals == nil {
		vals = []string{}
	}
	return json.Marshal(selectionJSON{Values: vals})
}

// UnmarshalJSON accepts {"all":true}, {"values":[...]} or a bare list, where
// a bare list goes through ParseSelection.
func (s *Selection) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var vals []string
		if err := json.Unmarshal(b, &vals); err != nil {
			return fmt.Errorf("selection: %w", err)
		}
		*s = ParseSelection(vals)
		return nil
	}
	var raw selectionJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if raw.All {
		*s = All()
		return nil
	}
	*s = Subset(raw.Values...)
	return nil
}
