package forms

import (
	"encoding/json"
	"time"
)

// FormType identifies one of the three request forms.
type FormType string

const (
	FormAnalysis FormType = "analysis"
	FormUpload   FormType = "upload"
	FormRecovery FormType = "recovery"
)

// Valid reports whether f is a known form type.
func (f FormType) Valid() bool {
	switch f {
	case FormAnalysis, FormUpload, FormRecovery:
		return true
	}
	return false
}

// AllFormTypes lists every form type in display order.
func AllFormTypes() []FormType {
	return []FormType{FormAnalysis, FormUpload, FormRecovery}
}

// FieldKind is the input control kind of a field.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindSelect   FieldKind = "select"
	KindRadio    FieldKind = "radio"
	KindDate     FieldKind = "date"
	KindDatetime FieldKind = "datetime"
	KindTextarea FieldKind = "textarea"
)

// ValidationRule names the validation applied to a field's raw value.
type ValidationRule string

const (
	RuleNone        ValidationRule = ""
	RuleEmail       ValidationRule = "email"
	RulePhone       ValidationRule = "phone"
	RuleOccurrence  ValidationRule = "occurrence"
	RuleLockerRange ValidationRule = "locker_range"
	RuleEndAfter    ValidationRule = "end_after"
	RuleNotFuture   ValidationRule = "not_future"
)

// GroupKind identifies a repeating field group.
type GroupKind string

const (
	GroupLocation  GroupKind = "location"
	GroupDVR       GroupKind = "dvr"
	GroupTimeframe GroupKind = "timeframe"
)

// NoParent marks a group instance that does not nest under another group.
const NoParent = -1

// FieldDescriptor describes one field of a form catalog entry.
// Descriptors are immutable once built; Required is the static default and
// may be overridden at runtime by conditional rules.
type FieldDescriptor struct {
	Name     string
	Kind     FieldKind
	Required bool
	Rule     ValidationRule
	// PairWith names the start field for RuleEndAfter validation.
	PairWith string
	// Group is non-empty for fields that belong to a repeating group
	// template rather than the form root.
	Group   GroupKind
	Default string
	Options []string
}

// RuleAction is the effect a conditional rule has on its affected fields.
type RuleAction string

const (
	// ShowAndRequire reveals the affected fields and marks them required.
	ShowAndRequire RuleAction = "show_and_require"
	// ShowOnly reveals the affected fields without adding a required
	// constraint.
	ShowOnly RuleAction = "show_only"
)

// ConditionalRule maps a trigger field value to the visibility and required
// state of dependent fields.
type ConditionalRule struct {
	Trigger      string
	TriggerValue string
	GroupID      string
	Fields       []string
	Action       RuleAction
}

// GroupKey identifies a repeating group instance within a session.
// Indices are stable for the life of the session; removal leaves gaps.
type GroupKey struct {
	Kind   GroupKind
	Index  int
	Parent int // NoParent unless Kind nests under another group
}

// GroupInstance is one live instance of a repeating field group.
type GroupInstance struct {
	Kind   GroupKind         `json:"kind"`
	Index  int               `json:"index"`
	Parent int               `json:"parent"`
	Values map[string]string `json:"values"`
}

// Key returns the arena key for this instance.
func (g GroupInstance) Key() GroupKey {
	return GroupKey{Kind: g.Kind, Index: g.Index, Parent: g.Parent}
}

// MarshalJSON ensures a nil Values map marshals as {} not null.
func (g GroupInstance) MarshalJSON() ([]byte, error) {
	if g.Values == nil {
		g.Values = map[string]string{}
	}
	type Alias GroupInstance
	return json.Marshal(Alias(g))
}

// Snapshot is an immutable copy of a form session's state, taken at
// submission time and fed to the derived-value calculators and the payload
// assembler.
type Snapshot struct {
	FormType FormType          `json:"form_type"`
	TakenAt  time.Time         `json:"taken_at"`
	Values   map[string]string `json:"values"`
	Groups   []GroupInstance   `json:"groups"`
}

// GroupsOf returns the live instances of kind under parent, ordered by index.
// Pass NoParent for non-nested kinds.
func (s Snapshot) GroupsOf(kind GroupKind, parent int) []GroupInstance {
	var out []GroupInstance
	for _, g := range s.Groups {
		if g.Kind == kind && g.Parent == parent {
			out = append(out, g)
		}
	}
	return out
}

// Profile is the investigator profile persisted independently of drafts.
type Profile struct {
	Name  string `json:"name"`
	Badge string `json:"badge"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// IsZero reports whether no profile field is set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Draft is a locally persisted, TTL-bound snapshot of in-progress input,
// keyed by form type.
type Draft struct {
	FormType FormType          `json:"form_type"`
	Values   map[string]string `json:"values"`
	Groups   []GroupInstance   `json:"groups"`
	SavedAt  time.Time         `json:"saved_at"`
}

// DraftTTL is how long a saved draft remains loadable.
const DraftTTL = 7 * 24 * time.Hour

// Expired reports whether the draft is past its TTL as of now.
func (d Draft) Expired(now time.Time) bool {
	return now.Sub(d.SavedAt) > DraftTTL
}

// Completion summarizes how much of a form's currently-required input is
// filled with valid values.
type Completion struct {
	Percentage int `json:"percentage"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}
