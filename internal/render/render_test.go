package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evidenceworks/reqforms/internal/forms"
)

func TestTemplateFor(t *testing.T) {
	tests := []struct {
		form forms.FormType
		want string
	}{
		{forms.FormAnalysis, "analysis-request"},
		{forms.FormUpload, "upload-request"},
		{forms.FormRecovery, "recovery-request"},
	}
	for _, tt := range tests {
		if got := TemplateFor(tt.form); got != tt.want {
			t.Errorf("TemplateFor(%s) = %q, want %q", tt.form, got, tt.want)
		}
		if got := AttachmentName(tt.form); got != tt.want+".txt" {
			t.Errorf("AttachmentName(%s) = %q", tt.form, got)
		}
	}
}

func TestTemplateFor_UnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("TemplateFor(unknown) did not panic")
		}
	}()
	TemplateFor(forms.FormType("bogus"))
}

func TestTextRender(t *testing.T) {
	nested := map[string]any{
		"summary":     "Video Recovery Request\n======================\n\nRequest Details\n",
		"submittedAt": "2025-03-10T14:00:00Z",
	}

	doc, err := NewText().Render(context.Background(), "recovery-request", nested)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	text := string(doc)
	for _, want := range []string{
		"PEEL REGIONAL POLICE - FORENSIC VIDEO UNIT",
		"Template: recovery-request",
		"Generated: 2025-03-10T14:00:00Z",
		"Video Recovery Request",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q:\n%s", want, text)
		}
	}

	// Deterministic across calls.
	again, err := NewText().Render(context.Background(), "recovery-request", nested)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(doc, again) {
		t.Error("repeated renders differ")
	}
}

func TestTextRender_MissingSummary(t *testing.T) {
	_, err := NewText().Render(context.Background(), "analysis-request", map[string]any{})

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Render = %v, want render error", err)
	}
	if rerr.TemplateID != "analysis-request" {
		t.Errorf("TemplateID = %q", rerr.TemplateID)
	}
}

func TestTextRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewText().Render(ctx, "analysis-request", map[string]any{"summary": "x"})
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Render = %v, want render error", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", rerr.Err)
	}
}
