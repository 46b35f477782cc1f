// Package derive computes values the forms display and submit but never ask
// the user for: retention-day counts, extraction durations, and the
// plain-text submission summary. Everything here is a pure function of its
// inputs.
package derive

import (
	"fmt"
	"strings"
	"time"

	"github.com/evidenceworks/reqforms/internal/forms"
)

// UrgentRetentionDays is the elapsed-day threshold at or under which a
// recovery request is flagged urgent for triage.
const UrgentRetentionDays = 4

// Retention is the result of the retention-day calculation.
type Retention struct {
	Days   int  `json:"days"`
	Urgent bool `json:"urgent"`
}

// RetentionDaysRemaining returns the floor of the calendar-day difference
// between now and the earliest recorded date, and whether the request is
// urgent. The paired validator rejects future dates before this runs, so a
// negative result never reaches callers.
func RetentionDaysRemaining(earliestRecorded, now time.Time) Retention {
	days := int(startOfDay(now).Sub(startOfDay(earliestRecorded)).Hours() / 24)
	return Retention{Days: days, Urgent: days <= UrgentRetentionDays}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DurationBetween renders the span between start and end as "<H> hour(s)
// <M> minute(s)", omitting a unit whose value is zero. Callers validate that
// end is after start; a non-positive span renders as "0 minutes".
func DurationBetween(start, end time.Time) string {
	d := end.Sub(start)
	if d <= 0 {
		return "0 minutes"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", hours, plural(hours, "hour")))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", minutes, plural(minutes, "minute")))
	}
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

var formTitles = map[forms.FormType]string{
	forms.FormAnalysis: "Video Analysis Request",
	forms.FormUpload:   "Video Upload Request",
	forms.FormRecovery: "Video Recovery Request",
}

// Summary renders the full nested form state as deterministic multi-section
// plain text. It is embedded in the legacy payload and is the basis of the
// rendered document, so it must be stable across calls and handle any number
// of repeating groups without truncation.
func Summary(snap forms.Snapshot) string {
	var b strings.Builder

	title := formTitles[snap.FormType]
	if title == "" {
		title = string(snap.FormType)
	}
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")

	writeSection(&b, "Request Details", snap.Values, rootFieldOrder(snap))

	switch snap.FormType {
	case forms.FormUpload:
		for _, loc := range snap.GroupsOf(forms.GroupLocation, forms.NoParent) {
			name := fmt.Sprintf("Location %d", loc.Index+1)
			writeSection(&b, name, loc.Values, []string{"locationName", "locationAddress", "cameraCount"})
		}
	case forms.FormRecovery:
		for _, dvr := range snap.GroupsOf(forms.GroupDVR, forms.NoParent) {
			name := fmt.Sprintf("DVR System %d", dvr.Index+1)
			writeSection(&b, name, dvr.Values, []string{"dvrLocation", "dvrMakeModel", "dvrSerial"})
			for _, tf := range snap.GroupsOf(forms.GroupTimeframe, dvr.Index) {
				writeTimeframe(&b, dvr.Index, tf)
			}
		}
		if raw := snap.Values["earliestRecordedDate"]; raw != "" {
			if d, err := forms.ParseDate(raw); err == nil {
				r := RetentionDaysRemaining(d, snap.TakenAt)
				fmt.Fprintf(&b, "Retention: %d days elapsed since earliest recording", r.Days)
				if r.Urgent {
					b.WriteString(" (URGENT)")
				}
				b.WriteString("\n\n")
			}
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// rootFieldOrder lists root fields in a fixed, form-independent order so the
// summary never depends on map iteration.
func rootFieldOrder(snap forms.Snapshot) []string {
	base := []string{
		"officerName", "badgeNumber", "officerPhone", "officerEmail",
		"occurrenceNumber", "city", "incidentType", "incidentTypeOther",
		"incidentDate",
	}
	switch snap.FormType {
	case forms.FormAnalysis:
		return append(base,
			"analysisType", "analysisTypeOther", "videoDescription",
			"storageMedium", "bagNumber", "lockerNumber", "networkPath",
			"exhibitNumber")
	case forms.FormUpload:
		return append(base,
			"uploadReason", "storageMedium", "bagNumber", "lockerNumber",
			"networkPath")
	case forms.FormRecovery:
		return append(base, "earliestRecordedDate", "sceneDetails")
	}
	return base
}

func writeSection(b *strings.Builder, title string, values map[string]string, order []string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	for _, name := range order {
		v := values[name]
		if v == "" {
			continue
		}
		fmt.Fprintf(b, "%s: %s\n", FieldLabel(name), v)
	}
	b.WriteString("\n")
}

func writeTimeframe(b *strings.Builder, dvrIndex int, tf forms.GroupInstance) {
	title := fmt.Sprintf("DVR System %d - Timeframe %d", dvrIndex+1, tf.Index+1)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	for _, name := range []string{"timeframeStart", "timeframeEnd"} {
		if v := tf.Values[name]; v != "" {
			fmt.Fprintf(b, "%s: %s\n", FieldLabel(name), v)
		}
	}
	start, serr := forms.ParseDatetime(tf.Values["timeframeStart"])
	end, eerr := forms.ParseDatetime(tf.Values["timeframeEnd"])
	if serr == nil && eerr == nil && end.After(start) {
		fmt.Fprintf(b, "Duration: %s\n", DurationBetween(start, end))
	}
	if v := tf.Values["timeframeNotes"]; v != "" {
		fmt.Fprintf(b, "%s: %s\n", FieldLabel("timeframeNotes"), v)
	}
	b.WriteString("\n")
}

// FieldLabel turns a camelCase field name into a human-readable label, e.g.
// "officerName" becomes "Officer Name". Acronym runs stay together.
func FieldLabel(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i == 0 {
			b.WriteRune(toUpper(r))
			continue
		}
		if isUpper(r) && !isUpper(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}
