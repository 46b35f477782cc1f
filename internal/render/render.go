// Package render is the document-rendering boundary. The engine hands a
// renderer a template identifier and the nested payload; how the document is
// laid out is the renderer's business. The shipping TextRenderer produces a
// deterministic plain-text document built around the payload's summary.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/evidenceworks/reqforms/internal/forms"
)

// Error is a document-rendering failure. It is never retried: the submission
// aborts before any network attempt, and surfacing it as its own type lets
// callers tell the user no transport call was made.
type Error struct {
	TemplateID string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("render template %s: %v", e.TemplateID, e.Err)
}

// Unwrap returns the underlying failure.
func (e *Error) Unwrap() error { return e.Err }

// Renderer renders a binary document from a template and the nested payload.
type Renderer interface {
	Render(ctx context.Context, templateID string, nested map[string]any) ([]byte, error)
}

// TemplateFor returns the document template identifier of a form type.
func TemplateFor(ft forms.FormType) string {
	switch ft {
	case forms.FormAnalysis:
		return "analysis-request"
	case forms.FormUpload:
		return "upload-request"
	case forms.FormRecovery:
		return "recovery-request"
	}
	panic(fmt.Sprintf("render: unknown form type %q", ft))
}

// AttachmentName returns the document filename for a form type.
func AttachmentName(ft forms.FormType) string {
	return TemplateFor(ft) + ".txt"
}

// TextRenderer renders the plain-text request document.
type TextRenderer struct{}

// NewText returns the plain-text renderer.
func NewText() *TextRenderer { return &TextRenderer{} }

// Render builds the document from the payload's summary section.
func (r *TextRenderer) Render(ctx context.Context, templateID string, nested map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{TemplateID: templateID, Err: err}
	}

	summary, ok := nested["summary"].(string)
	if !ok || summary == "" {
		return nil, &Error{TemplateID: templateID, Err: fmt.Errorf("payload has no summary")}
	}
	submittedAt, _ := nested["submittedAt"].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "PEEL REGIONAL POLICE - FORENSIC VIDEO UNIT\n")
	fmt.Fprintf(&b, "Template: %s\n", templateID)
	if submittedAt != "" {
		fmt.Fprintf(&b, "Generated: %s\n", submittedAt)
	}
	b.WriteString("\n")
	b.WriteString(summary)
	return []byte(b.String()), nil
}
