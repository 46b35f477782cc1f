// Package session implements the per-form lifecycle: hydration from a saved
// draft, mutation with conditional-rule and validation bookkeeping, debounced
// draft auto-save, and the submission pipeline. A session is the only writer
// of its form type's draft record.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/evidenceworks/reqforms/internal/catalog"
	"github.com/evidenceworks/reqforms/internal/forms"
	"github.com/evidenceworks/reqforms/internal/payload"
	"github.com/evidenceworks/reqforms/internal/render"
	"github.com/evidenceworks/reqforms/internal/validation"
)

// State is the lifecycle state of a form session.
type State string

const (
	StateHydrating                 State = "hydrating"
	StateActive                    State = "active"
	StateSubmitting                State = "submitting"
	StateSubmittedClean            State = "submitted_clean"
	StateSubmittedWithDraftRetained State = "submitted_draft_retained"
)

// DefaultDebounce is the auto-save inactivity delay.
const DefaultDebounce = 2 * time.Second

// DraftStore is the persistence boundary a session talks to. Implementations
// must treat expired drafts as absent. All session storage failures are
// downgraded to warnings; a nil store disables persistence entirely.
type DraftStore interface {
	LoadDraft(ctx context.Context, ft forms.FormType) (*forms.Draft, error)
	SaveDraft(ctx context.Context, d forms.Draft) error
	DeleteDraft(ctx context.Context, ft forms.FormType) error
	LoadProfile(ctx context.Context) (forms.Profile, error)
}

// SendFunc delivers a finished submission to a transport. The document and
// export bytes are the two attachments every backend receives.
type SendFunc func(ctx context.Context, snap forms.Snapshot, document, export []byte) error

// SubmitDeps are the external collaborators of the submission pipeline.
type SubmitDeps struct {
	Renderer render.Renderer
	Send     SendFunc
}

// BlockedError aggregates the field errors that stopped a submission.
type BlockedError struct {
	Errors []validation.FieldError
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("submission blocked: %d field(s) failed validation", len(e.Errors))
}

// FirstField names the first invalid field, for focusing.
func (e *BlockedError) FirstField() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Field
}

// fieldRef identifies a field slot: the zero key means a root field.
type fieldRef struct {
	key  forms.GroupKey
	name string
}

// Options configures a new session.
type Options struct {
	// Store persists drafts and the profile; nil runs in-memory only.
	Store DraftStore
	// Debounce overrides the auto-save inactivity delay.
	Debounce time.Duration
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Session is a single form instance's state machine. Methods are safe for
// use alongside the auto-save timer goroutine.
type Session struct {
	mu sync.Mutex

	formType forms.FormType
	state    State
	outcome  State

	values            map[string]string
	groups            map[forms.GroupKey]*forms.GroupInstance
	requiredOverrides map[string]struct{}
	visibleGroups     map[string]bool
	errors            map[fieldRef]string

	store    DraftStore
	profile  forms.Profile
	clock    func() time.Time
	debounce time.Duration

	timer       *time.Timer
	dirty       bool
	lastSavedAt time.Time
	autosaveOff bool
	closed      bool
}

// New creates and hydrates a session. Profile values fill investigator fields
// first; an unexpired draft then overrides them. Storage failures during
// hydration are logged and leave the session running in-memory.
func New(ctx context.Context, ft forms.FormType, opts Options) (*Session, error) {
	if !ft.Valid() {
		return nil, fmt.Errorf("unknown form type %q", ft)
	}

	s := &Session{
		formType:          ft,
		state:             StateHydrating,
		values:            make(map[string]string),
		groups:            make(map[forms.GroupKey]*forms.GroupInstance),
		requiredOverrides: make(map[string]struct{}),
		visibleGroups:     make(map[string]bool),
		errors:            make(map[fieldRef]string),
		store:             opts.Store,
		clock:             opts.Clock,
		debounce:          opts.Debounce,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyDefaultsLocked()
	s.seedGroupsLocked()
	s.hydrateLocked(ctx)
	s.applyRules()
	s.state = StateActive
	return s, nil
}

func (s *Session) applyDefaultsLocked() {
	for _, d := range catalog.FieldsFor(s.formType) {
		s.values[d.Name] = d.Default
	}
}

func (s *Session) hydrateLocked(ctx context.Context) {
	if s.store == nil {
		return
	}

	profile, err := s.store.LoadProfile(ctx)
	if err != nil {
		slog.Warn("profile load failed, continuing without defaults",
			"component", "session", "form", s.formType, "error", err)
	} else {
		s.profile = profile
		s.applyProfileLocked()
	}

	draft, err := s.store.LoadDraft(ctx, s.formType)
	if err != nil {
		slog.Warn("draft load failed, starting from defaults",
			"component", "session", "form", s.formType, "error", err)
		return
	}
	if draft == nil {
		return
	}

	for name, v := range draft.Values {
		if _, ok := catalog.Descriptor(s.formType, name); ok {
			s.values[name] = v
		}
	}
	for _, g := range draft.Groups {
		if g.Index < 0 {
			continue
		}
		inst := s.groups[g.Key()]
		if inst == nil {
			inst = s.createGroupLocked(g.Kind, g.Index, g.Parent)
		}
		for name, v := range g.Values {
			if _, ok := inst.Values[name]; ok {
				inst.Values[name] = v
			}
		}
	}
}

func (s *Session) applyProfileLocked() {
	byAttr := map[string]string{
		"name":  s.profile.Name,
		"badge": s.profile.Badge,
		"phone": s.profile.Phone,
		"email": s.profile.Email,
	}
	for attr, field := range catalog.ProfileFieldMap() {
		if v := byAttr[attr]; v != "" {
			s.values[field] = v
		}
	}
}

// FormType returns the session's form type.
func (s *Session) FormType() forms.FormType { return s.formType }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastOutcome returns the outcome of the most recent submission attempt, or
// the empty state when none has completed.
func (s *Session) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Value returns a root field's current value.
func (s *Session) Value(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// GroupValue returns a field value of a live group instance.
func (s *Session) GroupValue(kind forms.GroupKind, index, parent int, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.groups[forms.GroupKey{Kind: kind, Index: index, Parent: parent}]
	if g == nil {
		return ""
	}
	return g.Values[name]
}

// FieldRequired reports a root field's current effective required state.
func (s *Session) FieldRequired(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := catalog.Descriptor(s.formType, name)
	if !ok || d.Group != "" {
		return false
	}
	return s.requiredLocked(d)
}

// GroupVisible reports whether a conditional field group is revealed.
func (s *Session) GroupVisible(groupID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleGroups[groupID]
}

func (s *Session) requiredLocked(d forms.FieldDescriptor) bool {
	if d.Group != "" {
		return d.Required
	}
	if d.Required {
		return true
	}
	_, ok := s.requiredOverrides[d.Name]
	return ok
}

// SetField sets a root field's value, re-evaluates conditional rules the
// field triggers, and re-validates the field. An auto-save is scheduled.
func (s *Session) SetField(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("session is %s, not active", s.state)
	}
	d, ok := catalog.Descriptor(s.formType, name)
	if !ok || d.Group != "" {
		return fmt.Errorf("form %s has no root field %q", s.formType, name)
	}
	if s.fieldHiddenLocked(name) {
		return fmt.Errorf("field %q is hidden by a conditional rule", name)
	}

	s.values[name] = value
	if s.triggersRule(name) {
		s.applyRules()
	}
	s.validateRefLocked(fieldRef{name: name})
	s.markDirtyLocked()
	return nil
}

// SetGroupField sets a field on a live repeating-group instance and
// re-validates it. An auto-save is scheduled.
func (s *Session) SetGroupField(kind forms.GroupKind, index, parent int, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("session is %s, not active", s.state)
	}
	key := forms.GroupKey{Kind: kind, Index: index, Parent: parent}
	g := s.groups[key]
	if g == nil {
		return ErrGroupNotFound
	}
	if _, ok := g.Values[name]; !ok {
		return fmt.Errorf("group %s has no field %q", kind, name)
	}

	g.Values[name] = value
	s.validateRefLocked(fieldRef{key: key, name: name})
	s.markDirtyLocked()
	return nil
}

// validateRefLocked validates one field slot and records or clears its error.
func (s *Session) validateRefLocked(ref fieldRef) {
	d, ok := s.descriptorFor(ref)
	if !ok {
		return
	}
	raw, pair := s.valueAndPairLocked(ref, d)
	err := validation.Field(d, raw, s.requiredLocked(d), validation.Context{
		Now:       s.clock(),
		PairValue: pair,
	})
	if err != nil {
		s.errors[ref] = err.Message
	} else {
		delete(s.errors, ref)
	}
}

func (s *Session) descriptorFor(ref fieldRef) (forms.FieldDescriptor, bool) {
	if ref.key.Kind == "" {
		return catalog.Descriptor(s.formType, ref.name)
	}
	for _, d := range catalog.GroupFields(ref.key.Kind) {
		if d.Name == ref.name {
			return d, true
		}
	}
	return forms.FieldDescriptor{}, false
}

func (s *Session) valueAndPairLocked(ref fieldRef, d forms.FieldDescriptor) (raw, pair string) {
	if ref.key.Kind == "" {
		raw = s.values[ref.name]
		if d.PairWith != "" {
			pair = s.values[d.PairWith]
		}
		return raw, pair
	}
	g := s.groups[ref.key]
	if g == nil {
		return "", ""
	}
	raw = g.Values[ref.name]
	if d.PairWith != "" {
		pair = g.Values[d.PairWith]
	}
	return raw, pair
}

// FieldError returns the recorded validation message for a root field, or "".
func (s *Session) FieldError(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors[fieldRef{name: name}]
}

// Completion recomputes the required-field completion report. The
// denominator is every currently-required field, including dynamically
// required conditional fields and required fields of every live group
// instance; the numerator is the subset holding a valid non-empty value.
func (s *Session) Completion() forms.Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionLocked()
}

func (s *Session) completionLocked() forms.Completion {
	var total, completed int

	count := func(d forms.FieldDescriptor, ref fieldRef) {
		if !s.requiredLocked(d) {
			return
		}
		total++
		raw, pair := s.valueAndPairLocked(ref, d)
		if raw == "" {
			return
		}
		err := validation.Field(d, raw, true, validation.Context{Now: s.clock(), PairValue: pair})
		if err == nil {
			completed++
		}
	}

	for _, d := range catalog.FieldsFor(s.formType) {
		count(d, fieldRef{name: d.Name})
	}
	for _, g := range s.orderedGroupsLocked() {
		for _, d := range catalog.GroupFields(g.Kind) {
			count(d, fieldRef{key: g.Key(), name: d.Name})
		}
	}

	pct := 100
	if total > 0 {
		pct = completed * 100 / total
	}
	return forms.Completion{Percentage: pct, Completed: completed, Total: total}
}

// validateAllLocked runs full-form validation into a collector, in catalog
// order for root fields and group order for instances.
func (s *Session) validateAllLocked() *validation.Collector {
	var c validation.Collector

	check := func(d forms.FieldDescriptor, ref fieldRef) {
		raw, pair := s.valueAndPairLocked(ref, d)
		err := validation.Field(d, raw, s.requiredLocked(d), validation.Context{
			Now:       s.clock(),
			PairValue: pair,
		})
		if err != nil {
			c.Add(&validation.FieldError{
				Field:   payload.SuffixedName(ref.name, ref.key),
				Message: err.Message,
			})
			s.errors[ref] = err.Message
		} else {
			delete(s.errors, ref)
		}
	}

	for _, d := range catalog.FieldsFor(s.formType) {
		check(d, fieldRef{name: d.Name})
	}
	for _, g := range s.orderedGroupsLocked() {
		for _, d := range catalog.GroupFields(g.Kind) {
			check(d, fieldRef{key: g.Key(), name: d.Name})
		}
	}
	return &c
}

// orderedGroupsLocked returns all live groups in serialization order: kind,
// then parent, then index.
func (s *Session) orderedGroupsLocked() []*forms.GroupInstance {
	out := make([]*forms.GroupInstance, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return kindRank(a.Kind) < kindRank(b.Kind)
		}
		if a.Parent != b.Parent {
			return a.Parent < b.Parent
		}
		return a.Index < b.Index
	})
	return out
}

// Snapshot returns an immutable copy of the session's current state.
func (s *Session) Snapshot() forms.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() forms.Snapshot {
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	groups := make([]forms.GroupInstance, 0, len(s.groups))
	for _, g := range s.orderedGroupsLocked() {
		groups = append(groups, cloneGroup(*g))
	}
	return forms.Snapshot{
		FormType: s.formType,
		TakenAt:  s.clock(),
		Values:   values,
		Groups:   groups,
	}
}

// Submit runs the submission pipeline: full validation, rendering, payload
// assembly, and transport. On success the draft is cleared and the form is
// reset with profile fields repopulated. On any failure the draft is
// force-saved first, so no entered data is lost, and the session returns to
// active with every value intact.
func (s *Session) Submit(ctx context.Context, deps SubmitDeps) error {
	s.mu.Lock()
	if s.state != StateActive {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session is %s, not active", st)
	}
	s.state = StateSubmitting

	collector := s.validateAllLocked()
	if collector.HasErrors() {
		s.state = StateActive
		s.mu.Unlock()
		return &BlockedError{Errors: collector.Errors()}
	}

	snap := s.snapshotLocked()
	s.mu.Unlock()

	nested := payload.Nested(snap)
	document, err := deps.Renderer.Render(ctx, render.TemplateFor(snap.FormType), nested)
	if err != nil {
		s.failSubmit(ctx)
		return fmt.Errorf("render document: %w", err)
	}

	export, err := payload.ExportJSON(nested)
	if err != nil {
		s.failSubmit(ctx)
		return fmt.Errorf("build data export: %w", err)
	}

	if err := deps.Send(ctx, snap, document, export); err != nil {
		s.failSubmit(ctx)
		return err
	}

	s.completeSubmit(ctx)
	return nil
}

// failSubmit force-saves the draft and returns the session to active.
func (s *Session) failSubmit(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = StateSubmittedWithDraftRetained
	s.state = StateSubmittedWithDraftRetained
	s.saveDraftLocked(ctx, true)
	s.state = StateActive
}

// completeSubmit clears the draft and resets the form to defaults with
// profile fields repopulated. Draft deletion is best-effort: a storage
// failure here must not undo a successful submission.
func (s *Session) completeSubmit(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcome = StateSubmittedClean
	s.state = StateSubmittedClean

	s.stopTimerLocked()
	if s.store != nil {
		if err := s.store.DeleteDraft(ctx, s.formType); err != nil {
			slog.Warn("draft delete after submission failed",
				"component", "session", "form", s.formType, "error", err)
		}
		if profile, err := s.store.LoadProfile(ctx); err == nil {
			s.profile = profile
		}
	}

	s.values = make(map[string]string)
	s.groups = make(map[forms.GroupKey]*forms.GroupInstance)
	s.errors = make(map[fieldRef]string)
	s.applyDefaultsLocked()
	s.applyProfileLocked()
	s.seedGroupsLocked()
	s.applyRules()
	s.dirty = false
	s.state = StateActive
}

// markDirtyLocked schedules a debounced draft write. Each mutation restarts
// the timer, so the write lands after the configured inactivity window.
func (s *Session) markDirtyLocked() {
	s.dirty = true
	if s.store == nil || s.autosaveOff || s.closed {
		return
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.saveDraftLocked(context.Background(), false)
	})
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// saveDraftLocked writes the draft. When force is false the write is skipped
// unless there is unsaved input. A storage failure disables auto-save for
// the rest of the session and is warned exactly once.
func (s *Session) saveDraftLocked(ctx context.Context, force bool) {
	if s.store == nil || s.closed && !force {
		return
	}
	if !force && (!s.dirty || s.autosaveOff) {
		return
	}

	snap := s.snapshotLocked()
	draft := forms.Draft{
		FormType: s.formType,
		Values:   snap.Values,
		Groups:   snap.Groups,
		SavedAt:  s.clock(),
	}
	if err := s.store.SaveDraft(ctx, draft); err != nil {
		if !s.autosaveOff {
			s.autosaveOff = true
			slog.Warn("auto-save unavailable for this session",
				"component", "session", "form", s.formType, "error", err)
		}
		return
	}
	s.dirty = false
	s.lastSavedAt = draft.SavedAt
}

// Flush forces an immediate draft write, bypassing the debounce window.
func (s *Session) Flush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.saveDraftLocked(ctx, true)
}

// LastSavedAt returns when the draft was last written, zero if never.
func (s *Session) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// AutoSaveAvailable reports whether draft persistence is still operating.
func (s *Session) AutoSaveAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil && !s.autosaveOff
}

// Close cancels any pending auto-save timer. The discarded keystrokes are
// not written; an in-flight submission is deliberately not cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimerLocked()
}
