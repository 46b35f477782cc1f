package transport

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/evidenceworks/reqforms/internal/forms"
)

func TestNewSubmission(t *testing.T) {
	snap := forms.Snapshot{
		FormType: forms.FormUpload,
		TakenAt:  time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		Values: map[string]string{
			"officerName":      "J. Patel",
			"officerEmail":     "jpatel@peelpolice.ca",
			"occurrenceNumber": "PR2025001",
		},
	}
	document := []byte("rendered document")
	export := []byte(`{"formType":"upload"}`)

	sub := NewSubmission(snap, document, export)

	if _, err := ulid.Parse(sub.ID); err != nil {
		t.Errorf("ID %q is not a ULID: %v", sub.ID, err)
	}
	if sub.RequestType != forms.FormUpload || sub.Status != StatusPending {
		t.Errorf("submission = %+v", sub)
	}
	if sub.RequestingName != "J. Patel" || sub.RequestingEmail != "jpatel@peelpolice.ca" {
		t.Errorf("requester fields = %q / %q", sub.RequestingName, sub.RequestingEmail)
	}
	if sub.OccurrenceNumber != "PR2025001" {
		t.Errorf("occurrence = %q", sub.OccurrenceNumber)
	}
	if sub.FormData["formType"] != "upload" {
		t.Errorf("nested payload formType = %v", sub.FormData["formType"])
	}
	if sub.LegacyFields["ticket_category"] != "3116" {
		t.Errorf("legacy ticket_category = %q", sub.LegacyFields["ticket_category"])
	}

	doc := sub.Attachment(AttachmentDocument)
	if doc == nil || string(doc.Data) != "rendered document" || doc.Size != int64(len(document)) {
		t.Errorf("document attachment = %+v", doc)
	}
	if doc != nil && doc.Filename != "upload-request.txt" {
		t.Errorf("document filename = %q", doc.Filename)
	}
	exp := sub.Attachment(AttachmentExport)
	if exp == nil || exp.Filename != "export.json" {
		t.Errorf("export attachment = %+v", exp)
	}
	if sub.Attachment("nonsense") != nil {
		t.Error("unknown attachment type returned something")
	}
}

func TestSubmissionIDsUnique(t *testing.T) {
	snap := forms.Snapshot{FormType: forms.FormAnalysis, TakenAt: time.Now()}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		sub := NewSubmission(snap, nil, nil)
		if seen[sub.ID] {
			t.Fatalf("duplicate submission ID %s", sub.ID)
		}
		seen[sub.ID] = true
	}
}

func TestSender(t *testing.T) {
	next := &scriptedTransport{}
	send := Sender(next)

	snap := forms.Snapshot{
		FormType: forms.FormAnalysis,
		TakenAt:  time.Now(),
		Values:   map[string]string{"occurrenceNumber": "PR1"},
	}
	if err := send(context.Background(), snap, []byte("doc"), []byte("{}")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if next.calls != 1 {
		t.Errorf("transport calls = %d", next.calls)
	}
}
