package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/evidenceworks/reqforms/internal/catalog"
	"github.com/evidenceworks/reqforms/internal/forms"
)

var (
	// ErrRemoveIndexZero is returned when removing a group's first instance.
	ErrRemoveIndexZero = errors.New("the first group instance cannot be removed")
	// ErrGroupNotFound is returned for operations on a dead or unknown
	// group instance.
	ErrGroupNotFound = errors.New("group instance not found")
)

// AddGroup creates a new instance of a repeating group and returns its index.
// The index is one past the highest live sibling index; indices freed by
// removal are never reused within a session. Pass forms.NoParent for
// top-level kinds; timeframes require the index of a live DVR instance.
func (s *Session) AddGroup(kind forms.GroupKind, parent int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0, fmt.Errorf("session is %s, not active", s.state)
	}
	if err := s.checkGroupKind(kind, parent); err != nil {
		return 0, err
	}

	index := s.nextIndexLocked(kind, parent)
	s.createGroupLocked(kind, index, parent)
	// Every DVR system carries at least one extraction timeframe.
	if kind == forms.GroupDVR {
		s.createGroupLocked(forms.GroupTimeframe, 0, index)
	}
	s.markDirtyLocked()
	return index, nil
}

// RemoveGroup deletes a group instance and, for DVR systems, every timeframe
// nested under it. Index 0 may never be removed. Remaining siblings keep
// their indices; gaps are permanent.
func (s *Session) RemoveGroup(kind forms.GroupKind, index, parent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return fmt.Errorf("session is %s, not active", s.state)
	}
	if index == 0 {
		return ErrRemoveIndexZero
	}

	key := forms.GroupKey{Kind: kind, Index: index, Parent: parent}
	if _, ok := s.groups[key]; !ok {
		return ErrGroupNotFound
	}

	s.deleteGroupLocked(key)
	if kind == forms.GroupDVR {
		for _, g := range s.groupsOfLocked(forms.GroupTimeframe, index) {
			s.deleteGroupLocked(g.Key())
		}
	}

	s.markDirtyLocked()
	return nil
}

// Groups returns the live instances of kind under parent, ordered by index.
func (s *Session) Groups(kind forms.GroupKind, parent int) []forms.GroupInstance {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []forms.GroupInstance
	for _, g := range s.groupsOfLocked(kind, parent) {
		out = append(out, cloneGroup(*g))
	}
	return out
}

func (s *Session) checkGroupKind(kind forms.GroupKind, parent int) error {
	if kind == forms.GroupTimeframe {
		if s.formType != forms.FormRecovery {
			return fmt.Errorf("form %s has no %s groups", s.formType, kind)
		}
		parentKey := forms.GroupKey{Kind: forms.GroupDVR, Index: parent, Parent: forms.NoParent}
		if _, ok := s.groups[parentKey]; !ok {
			return fmt.Errorf("no live DVR instance at index %d: %w", parent, ErrGroupNotFound)
		}
		return nil
	}

	if parent != forms.NoParent {
		return fmt.Errorf("group kind %s does not nest", kind)
	}
	for _, k := range catalog.GroupKindsFor(s.formType) {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("form %s has no %s groups", s.formType, kind)
}

func (s *Session) nextIndexLocked(kind forms.GroupKind, parent int) int {
	next := 0
	for key := range s.groups {
		if key.Kind == kind && key.Parent == parent && key.Index >= next {
			next = key.Index + 1
		}
	}
	return next
}

func (s *Session) createGroupLocked(kind forms.GroupKind, index, parent int) *forms.GroupInstance {
	values := make(map[string]string)
	for _, d := range catalog.GroupFields(kind) {
		values[d.Name] = d.Default
	}
	g := &forms.GroupInstance{Kind: kind, Index: index, Parent: parent, Values: values}
	s.groups[g.Key()] = g
	return g
}

func (s *Session) deleteGroupLocked(key forms.GroupKey) {
	delete(s.groups, key)
	for ref := range s.errors {
		if ref.key == key {
			delete(s.errors, ref)
		}
	}
}

// groupsOfLocked returns live instances of kind under parent sorted by index.
func (s *Session) groupsOfLocked(kind forms.GroupKind, parent int) []*forms.GroupInstance {
	var out []*forms.GroupInstance
	for key, g := range s.groups {
		if key.Kind == kind && key.Parent == parent {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// seedGroupsLocked ensures the index-0 instances every form starts with.
func (s *Session) seedGroupsLocked() {
	for _, kind := range catalog.GroupKindsFor(s.formType) {
		key := forms.GroupKey{Kind: kind, Index: 0, Parent: forms.NoParent}
		if _, ok := s.groups[key]; !ok {
			s.createGroupLocked(kind, 0, forms.NoParent)
		}
		if kind == forms.GroupDVR {
			tfKey := forms.GroupKey{Kind: forms.GroupTimeframe, Index: 0, Parent: 0}
			if _, ok := s.groups[tfKey]; !ok {
				s.createGroupLocked(forms.GroupTimeframe, 0, 0)
			}
		}
	}
}

func cloneGroup(g forms.GroupInstance) forms.GroupInstance {
	values := make(map[string]string, len(g.Values))
	for k, v := range g.Values {
		values[k] = v
	}
	g.Values = values
	return g
}

// kindRank fixes the serialization order of group kinds in snapshots.
func kindRank(kind forms.GroupKind) int {
	switch kind {
	case forms.GroupLocation:
		return 0
	case forms.GroupDVR:
		return 1
	case forms.GroupTimeframe:
		return 2
	}
	return 3
}
