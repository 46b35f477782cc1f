// Package payload turns a form session snapshot into the two wire shapes the
// backends expect: a nested structural mirror for the modern backend and the
// document renderer, and a flattened, renamed shape for the legacy endpoint.
// Both assemblers are pure functions of the snapshot, so repeated calls on an
// unmutated session are byte-identical.
package payload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/evidenceworks/reqforms/internal/derive"
	"github.com/evidenceworks/reqforms/internal/forms"
)

// SuffixedName renders the positional field name a group field carries on
// the wire. Index 0 uses the bare name; later instances append their index,
// and timeframes compose the parent DVR position ("timeframeStart_dvr1_2").
// This is the only place suffix strings are generated; in-memory identity is
// always the (kind, index, parent) key.
func SuffixedName(name string, key forms.GroupKey) string {
	switch {
	case key.Kind == "":
		return name
	case key.Kind == forms.GroupTimeframe:
		if key.Parent == 0 && key.Index == 0 {
			return name
		}
		return fmt.Sprintf("%s_dvr%d_%d", name, key.Parent, key.Index)
	default:
		if key.Index == 0 {
			return name
		}
		return fmt.Sprintf("%s_%d", name, key.Index)
	}
}

// Nested assembles the structurally faithful payload: root fields as a map,
// repeating groups as ordered arrays of objects, derived values alongside.
func Nested(snap forms.Snapshot) map[string]any {
	out := map[string]any{
		"formType":    string(snap.FormType),
		"submittedAt": snap.TakenAt.UTC().Format(time.RFC3339),
		"fields":      copyValues(snap.Values),
		"summary":     derive.Summary(snap),
	}

	switch snap.FormType {
	case forms.FormUpload:
		out["locations"] = locationArray(snap)
	case forms.FormRecovery:
		out["dvrSystems"] = dvrArray(snap)
		if r, ok := retentionOf(snap); ok {
			out["retention"] = map[string]any{"days": r.Days, "urgent": r.Urgent}
		}
	}
	return out
}

func locationArray(snap forms.Snapshot) []map[string]any {
	groups := snap.GroupsOf(forms.GroupLocation, forms.NoParent)
	out := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		entry := valuesAny(g.Values)
		entry["index"] = g.Index
		out = append(out, entry)
	}
	return out
}

func dvrArray(snap forms.Snapshot) []map[string]any {
	dvrs := snap.GroupsOf(forms.GroupDVR, forms.NoParent)
	out := make([]map[string]any, 0, len(dvrs))
	for _, dvr := range dvrs {
		entry := valuesAny(dvr.Values)
		entry["index"] = dvr.Index

		tfs := snap.GroupsOf(forms.GroupTimeframe, dvr.Index)
		tfArray := make([]map[string]any, 0, len(tfs))
		for _, tf := range tfs {
			tfEntry := valuesAny(tf.Values)
			tfEntry["index"] = tf.Index
			if d, ok := timeframeDuration(tf); ok {
				tfEntry["duration"] = d
			}
			tfArray = append(tfArray, tfEntry)
		}
		entry["timeframes"] = tfArray
		out = append(out, entry)
	}
	return out
}

func timeframeDuration(tf forms.GroupInstance) (string, bool) {
	start, serr := forms.ParseDatetime(tf.Values["timeframeStart"])
	end, eerr := forms.ParseDatetime(tf.Values["timeframeEnd"])
	if serr != nil || eerr != nil || !end.After(start) {
		return "", false
	}
	return derive.DurationBetween(start, end), true
}

func retentionOf(snap forms.Snapshot) (derive.Retention, bool) {
	raw := snap.Values["earliestRecordedDate"]
	if raw == "" {
		return derive.Retention{}, false
	}
	d, err := forms.ParseDate(raw)
	if err != nil || d.After(snap.TakenAt) {
		return derive.Retention{}, false
	}
	return derive.RetentionDaysRemaining(d, snap.TakenAt), true
}

// ExportJSON renders a nested payload as the structured-data export
// attachment. encoding/json sorts map keys, keeping the output stable.
func ExportJSON(nested map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

func copyValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func valuesAny(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// legacyNames is the fixed rename table the legacy schema requires for
// root-level fields. Unlisted fields keep their names.
var legacyNames = map[string]string{
	"officerName":      "requestor_name",
	"badgeNumber":      "requestor_badge",
	"officerPhone":     "requestor_phone",
	"officerEmail":     "requestor_email",
	"occurrenceNumber": "occ_number",
	"city":             "request_area",
	"incidentType":     "incident_code",
	"incidentDate":     "incident_date",
}

// incidentCodes maps the user-facing incident category to the numeric code
// the legacy system files tickets under.
var incidentCodes = map[string]string{
	"Robbery":                 "201",
	"Break and Enter":         "202",
	"Assault":                 "203",
	"Fraud":                   "204",
	"Motor Vehicle Collision": "205",
	"Other":                   "299",
}

// Fixed constants the legacy schema requires with no user-facing input.
const (
	legacyServiceArea = "21"
)

var legacyTicketCategories = map[forms.FormType]string{
	forms.FormAnalysis: "3115",
	forms.FormUpload:   "3116",
	forms.FormRecovery: "3117",
}

// Legacy assembles the flattened legacy payload: the rename table applied to
// root fields, every repeating-group field under its positional suffixed
// name (which leaves index-0 data duplicated at the root under bare names),
// the full group arrays JSON-encoded under a single field, injected constant
// fields, and the plain-text summary.
func Legacy(snap forms.Snapshot) map[string]string {
	out := map[string]string{
		"request_type":    string(snap.FormType),
		"service_area":    legacyServiceArea,
		"ticket_category": legacyTicketCategories[snap.FormType],
		"submitted_at":    snap.TakenAt.UTC().Format(time.RFC3339),
		"description":     derive.Summary(snap),
	}

	for name, v := range snap.Values {
		key := name
		if renamed, ok := legacyNames[name]; ok {
			key = renamed
		}
		if name == "incidentType" {
			if code, ok := incidentCodes[v]; ok {
				v = code
			}
		}
		out[key] = v
	}

	for _, g := range snap.Groups {
		key := g.Key()
		for name, v := range g.Values {
			out[SuffixedName(name, key)] = v
		}
	}

	switch snap.FormType {
	case forms.FormUpload:
		out["locations_json"] = mustCompactJSON(locationArray(snap))
	case forms.FormRecovery:
		out["dvr_systems_json"] = mustCompactJSON(dvrArray(snap))
		if r, ok := retentionOf(snap); ok {
			out["retention_days"] = strconv.Itoa(r.Days)
			out["retention_urgent"] = strconv.FormatBool(r.Urgent)
		}
	}

	return out
}

func mustCompactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only string maps and slices reach here; marshaling cannot fail.
		panic(fmt.Sprintf("payload: marshal legacy array: %v", err))
	}
	return string(data)
}
