// Package catalog is the static description of every field, repeating group,
// and conditional rule of the three request forms. All lookups are pure; an
// unknown form type or group kind is a programmer error and panics.
package catalog

import (
	"fmt"

	"github.com/evidenceworks/reqforms/internal/forms"
)

// Trigger values that reveal conditional fields.
const (
	IncidentTypeOther    = "Other"
	AnalysisTypeOther    = "Other"
	MediumPropertyLocker = "Property Locker"
	MediumNetworkShare   = "Network Share"
)

var commonFields = []forms.FieldDescriptor{
	{Name: "officerName", Kind: forms.KindText, Required: true},
	{Name: "badgeNumber", Kind: forms.KindText, Required: true},
	{Name: "officerPhone", Kind: forms.KindText, Required: true, Rule: forms.RulePhone},
	{Name: "officerEmail", Kind: forms.KindText, Required: true, Rule: forms.RuleEmail},
	{Name: "occurrenceNumber", Kind: forms.KindText, Required: true, Rule: forms.RuleOccurrence},
	{Name: "city", Kind: forms.KindSelect, Required: true, Options: []string{"Mississauga", "Brampton", "Caledon"}},
}

var incidentFields = []forms.FieldDescriptor{
	{Name: "incidentType", Kind: forms.KindSelect, Required: true, Options: []string{
		"Robbery", "Break and Enter", "Assault", "Fraud", "Motor Vehicle Collision", "Other",
	}},
	// Revealed when incidentType is "Other".
	{Name: "incidentTypeOther", Kind: forms.KindText},
	{Name: "incidentDate", Kind: forms.KindDate, Required: true},
}

var storageFields = []forms.FieldDescriptor{
	{Name: "storageMedium", Kind: forms.KindSelect, Required: true, Options: []string{
		"USB Drive", "DVD / Blu-ray", "Hard Drive", MediumPropertyLocker, MediumNetworkShare,
	}},
	// Locker sub-fields are always optional regardless of visibility.
	{Name: "bagNumber", Kind: forms.KindText},
	{Name: "lockerNumber", Kind: forms.KindText, Rule: forms.RuleLockerRange},
	// Revealed (and required) when storageMedium is "Network Share".
	{Name: "networkPath", Kind: forms.KindText},
}

var analysisFields = concat(commonFields, incidentFields, storageFields, []forms.FieldDescriptor{
	{Name: "analysisType", Kind: forms.KindSelect, Required: true, Options: []string{
		"Video Enhancement", "Image Comparison", "Format Conversion", "Speed Estimation", "Other",
	}},
	{Name: "analysisTypeOther", Kind: forms.KindText},
	{Name: "videoDescription", Kind: forms.KindTextarea, Required: true},
	{Name: "exhibitNumber", Kind: forms.KindText},
})

var uploadFields = concat(commonFields, incidentFields, storageFields, []forms.FieldDescriptor{
	{Name: "uploadReason", Kind: forms.KindTextarea, Required: true},
})

var recoveryFields = concat(commonFields, incidentFields, []forms.FieldDescriptor{
	{Name: "earliestRecordedDate", Kind: forms.KindDate, Required: true, Rule: forms.RuleNotFuture},
	{Name: "sceneDetails", Kind: forms.KindTextarea},
})

var locationFields = []forms.FieldDescriptor{
	{Name: "locationName", Kind: forms.KindText, Required: true, Group: forms.GroupLocation},
	{Name: "locationAddress", Kind: forms.KindText, Required: true, Group: forms.GroupLocation},
	{Name: "cameraCount", Kind: forms.KindText, Group: forms.GroupLocation},
}

var dvrFields = []forms.FieldDescriptor{
	{Name: "dvrLocation", Kind: forms.KindText, Required: true, Group: forms.GroupDVR},
	{Name: "dvrMakeModel", Kind: forms.KindText, Group: forms.GroupDVR},
	{Name: "dvrSerial", Kind: forms.KindText, Group: forms.GroupDVR},
}

var timeframeFields = []forms.FieldDescriptor{
	{Name: "timeframeStart", Kind: forms.KindDatetime, Required: true, Group: forms.GroupTimeframe},
	{Name: "timeframeEnd", Kind: forms.KindDatetime, Required: true, Rule: forms.RuleEndAfter, PairWith: "timeframeStart", Group: forms.GroupTimeframe},
	{Name: "timeframeNotes", Kind: forms.KindTextarea, Group: forms.GroupTimeframe},
}

// FieldsFor returns the ordered root-level field descriptors for a form.
func FieldsFor(ft forms.FormType) []forms.FieldDescriptor {
	switch ft {
	case forms.FormAnalysis:
		return analysisFields
	case forms.FormUpload:
		return uploadFields
	case forms.FormRecovery:
		return recoveryFields
	}
	panic(fmt.Sprintf("catalog: unknown form type %q", ft))
}

// GroupFields returns the field template of a repeating group kind.
func GroupFields(kind forms.GroupKind) []forms.FieldDescriptor {
	switch kind {
	case forms.GroupLocation:
		return locationFields
	case forms.GroupDVR:
		return dvrFields
	case forms.GroupTimeframe:
		return timeframeFields
	}
	panic(fmt.Sprintf("catalog: unknown group kind %q", kind))
}

// GroupKindsFor returns the top-level repeating group kinds a form carries.
// Timeframes are not listed; they nest under DVR instances.
func GroupKindsFor(ft forms.FormType) []forms.GroupKind {
	switch ft {
	case forms.FormAnalysis:
		return nil
	case forms.FormUpload:
		return []forms.GroupKind{forms.GroupLocation}
	case forms.FormRecovery:
		return []forms.GroupKind{forms.GroupDVR}
	}
	panic(fmt.Sprintf("catalog: unknown form type %q", ft))
}

var incidentOtherRule = forms.ConditionalRule{
	Trigger:      "incidentType",
	TriggerValue: IncidentTypeOther,
	GroupID:      "incident-other",
	Fields:       []string{"incidentTypeOther"},
	Action:       forms.ShowAndRequire,
}

var lockerRule = forms.ConditionalRule{
	Trigger:      "storageMedium",
	TriggerValue: MediumPropertyLocker,
	GroupID:      "locker-details",
	Fields:       []string{"bagNumber", "lockerNumber"},
	Action:       forms.ShowOnly,
}

var networkShareRule = forms.ConditionalRule{
	Trigger:      "storageMedium",
	TriggerValue: MediumNetworkShare,
	GroupID:      "network-details",
	Fields:       []string{"networkPath"},
	Action:       forms.ShowAndRequire,
}

var analysisOtherRule = forms.ConditionalRule{
	Trigger:      "analysisType",
	TriggerValue: AnalysisTypeOther,
	GroupID:      "analysis-other",
	Fields:       []string{"analysisTypeOther"},
	Action:       forms.ShowAndRequire,
}

// RulesFor returns the conditional rules of a form in evaluation order.
func RulesFor(ft forms.FormType) []forms.ConditionalRule {
	switch ft {
	case forms.FormAnalysis:
		return []forms.ConditionalRule{incidentOtherRule, analysisOtherRule, lockerRule, networkShareRule}
	case forms.FormUpload:
		return []forms.ConditionalRule{incidentOtherRule, lockerRule, networkShareRule}
	case forms.FormRecovery:
		return []forms.ConditionalRule{incidentOtherRule}
	}
	panic(fmt.Sprintf("catalog: unknown form type %q", ft))
}

// Descriptor looks up a field by name across a form's root fields and the
// templates of every group kind reachable from it.
func Descriptor(ft forms.FormType, name string) (forms.FieldDescriptor, bool) {
	for _, d := range FieldsFor(ft) {
		if d.Name == name {
			return d, true
		}
	}
	for _, kind := range GroupKindsFor(ft) {
		for _, d := range GroupFields(kind) {
			if d.Name == name {
				return d, true
			}
		}
		if kind == forms.GroupDVR {
			for _, d := range GroupFields(forms.GroupTimeframe) {
				if d.Name == name {
					return d, true
				}
			}
		}
	}
	return forms.FieldDescriptor{}, false
}

// ProfileFieldMap maps investigator profile attributes to the form fields
// they hydrate. Draft values take precedence over profile values.
func ProfileFieldMap() map[string]string {
	return map[string]string{
		"name":  "officerName",
		"badge": "badgeNumber",
		"phone": "officerPhone",
		"email": "officerEmail",
	}
}

func concat(lists ...[]forms.FieldDescriptor) []forms.FieldDescriptor {
	var out []forms.FieldDescriptor
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
