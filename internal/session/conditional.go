package session

import (
	"github.com/evidenceworks/reqforms/internal/catalog"
	"github.com/evidenceworks/reqforms/internal/forms"
)

// applyRules re-evaluates every conditional rule of the form against the
// current trigger values. It rebuilds the required-override set from scratch
// and clears the values of fields that are no longer revealed by any active
// rule, so stale hidden input can never reach a payload.
//
// Recomputing across all rules (rather than only the rules of the trigger
// that changed) keeps the invariant that a field is required iff at least one
// active SHOW_AND_REQUIRE rule lists it, even when rules overlap.
func (s *Session) applyRules() {
	rules := catalog.RulesFor(s.formType)

	overrides := make(map[string]struct{})
	visibleFields := make(map[string]struct{})

	for _, r := range rules {
		active := s.values[r.Trigger] == r.TriggerValue
		s.visibleGroups[r.GroupID] = active
		if !active {
			continue
		}
		for _, f := range r.Fields {
			visibleFields[f] = struct{}{}
			if r.Action == forms.ShowAndRequire {
				overrides[f] = struct{}{}
			}
		}
	}

	for _, r := range rules {
		if s.values[r.Trigger] == r.TriggerValue {
			continue
		}
		for _, f := range r.Fields {
			if _, shown := visibleFields[f]; shown {
				continue
			}
			if s.values[f] != "" {
				s.values[f] = ""
			}
			delete(s.errors, fieldRef{name: f})
		}
	}

	s.requiredOverrides = overrides
}

// fieldHiddenLocked reports whether a root field is a dependent of a
// conditional rule and no currently active rule reveals it. Writes to such a
// field are rejected so a hidden value can never reach a payload.
func (s *Session) fieldHiddenLocked(name string) bool {
	dependent := false
	for _, r := range catalog.RulesFor(s.formType) {
		for _, f := range r.Fields {
			if f != name {
				continue
			}
			dependent = true
			if s.values[r.Trigger] == r.TriggerValue {
				return false
			}
		}
	}
	return dependent
}

// triggersRule reports whether any conditional rule of the form uses the
// named field as its trigger.
func (s *Session) triggersRule(name string) bool {
	for _, r := range catalog.RulesFor(s.formType) {
		if r.Trigger == name {
			return true
		}
	}
	return false
}
