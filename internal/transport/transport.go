// Package transport delivers finished submissions to one of the two
// interchangeable backends: the object-store insert the modern system reads,
// or the legacy multipart HTTP endpoint. Both receive the same two
// attachments, the rendered document and the structured-data export.
package transport

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/evidenceworks/reqforms/internal/forms"
	"github.com/evidenceworks/reqforms/internal/payload"
	"github.com/evidenceworks/reqforms/internal/render"
)

// Attachment types.
const (
	AttachmentDocument = "document"
	AttachmentExport   = "export"
)

// StatusPending is the status every new submission record carries.
const StatusPending = "pending"

// Attachment is one file delivered alongside the submission.
type Attachment struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
	Size     int64  `json:"size"`
}

// Submission is a transport-ready rendering of a session snapshot. Both wire
// shapes are assembled up front so a transport only moves bytes.
type Submission struct {
	ID               string
	RequestType      forms.FormType
	FormData         map[string]any
	LegacyFields     map[string]string
	RequestingName   string
	RequestingEmail  string
	OccurrenceNumber string
	Status           string
	Attachments      []Attachment
}

// NewSubmission assembles both payload shapes and the two standard
// attachments from a snapshot.
func NewSubmission(snap forms.Snapshot, document, export []byte) *Submission {
	return &Submission{
		ID:               ulid.Make().String(),
		RequestType:      snap.FormType,
		FormData:         payload.Nested(snap),
		LegacyFields:     payload.Legacy(snap),
		RequestingName:   snap.Values["officerName"],
		RequestingEmail:  snap.Values["officerEmail"],
		OccurrenceNumber: snap.Values["occurrenceNumber"],
		Status:           StatusPending,
		Attachments: []Attachment{
			{
				Type:     AttachmentDocument,
				Filename: render.AttachmentName(snap.FormType),
				Data:     document,
				Size:     int64(len(document)),
			},
			{
				Type:     AttachmentExport,
				Filename: "export.json",
				Data:     export,
				Size:     int64(len(export)),
			},
		},
	}
}

// Attachment returns the attachment of the given type, or nil.
func (s *Submission) Attachment(attachmentType string) *Attachment {
	for i := range s.Attachments {
		if s.Attachments[i].Type == attachmentType {
			return &s.Attachments[i]
		}
	}
	return nil
}

// Transport delivers a submission. Failures are *Error values carrying the
// retry-policy classification.
type Transport interface {
	Send(ctx context.Context, sub *Submission) error
}

// Sender adapts a transport into the session's send callback, building the
// submission from the snapshot and attachments.
func Sender(t Transport) func(ctx context.Context, snap forms.Snapshot, document, export []byte) error {
	return func(ctx context.Context, snap forms.Snapshot, document, export []byte) error {
		return t.Send(ctx, NewSubmission(snap, document, export))
	}
}
