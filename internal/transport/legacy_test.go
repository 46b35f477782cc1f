package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evidenceworks/reqforms/internal/config"
	"github.com/evidenceworks/reqforms/internal/forms"
)

// capturedRequest is one multipart POST as the fake legacy endpoint saw it.
type capturedRequest struct {
	fieldOrder []string
	fields     map[string]string
	files      map[string]capturedFile
}

type capturedFile struct {
	filename string
	data     string
}

// fakeLegacyEndpoint runs an intake route that records each multipart request
// and answers with a scripted status.
type fakeLegacyEndpoint struct {
	srv      *httptest.Server
	status   int
	header   http.Header
	requests []capturedRequest
}

func newFakeLegacyEndpoint(t *testing.T) *fakeLegacyEndpoint {
	t.Helper()
	f := &fakeLegacyEndpoint{status: http.StatusOK}

	r := chi.NewRouter()
	r.Post("/intake", func(w http.ResponseWriter, req *http.Request) {
		got, err := readMultipart(req)
		if err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.requests = append(f.requests, got)
		for k, vs := range f.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(f.status)
	})

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLegacyEndpoint) endpoint() string { return f.srv.URL + "/intake" }

func readMultipart(req *http.Request) (capturedRequest, error) {
	out := capturedRequest{
		fields: make(map[string]string),
		files:  make(map[string]capturedFile),
	}
	mr, err := req.MultipartReader()
	if err != nil {
		return out, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return out, err
		}
		if part.FileName() != "" {
			out.files[part.FormName()] = capturedFile{filename: part.FileName(), data: string(data)}
			continue
		}
		out.fieldOrder = append(out.fieldOrder, part.FormName())
		out.fields[part.FormName()] = string(data)
	}
}

func legacySubmission() *Submission {
	snap := forms.Snapshot{
		FormType: forms.FormAnalysis,
		TakenAt:  time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		Values: map[string]string{
			"officerName":      "J. Patel",
			"officerEmail":     "jpatel@peelpolice.ca",
			"occurrenceNumber": "PR2025001",
			"incidentType":     "Assault",
		},
	}
	return NewSubmission(snap, []byte("rendered document"), []byte(`{"formType":"analysis"}`))
}

func TestLegacySend_FieldsAndParts(t *testing.T) {
	f := newFakeLegacyEndpoint(t)

	tr, err := NewLegacy(config.LegacyConfig{Endpoint: f.endpoint(), SessionToken: "tok-123"})
	if err != nil {
		t.Fatalf("NewLegacy: %v", err)
	}
	if err := tr.Send(context.Background(), legacySubmission()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(f.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(f.requests))
	}
	got := f.requests[0]

	wantFields := map[string]string{
		"request_type":    "analysis",
		"service_area":    "21",
		"ticket_category": "3115",
		"requestor_name":  "J. Patel",
		"requestor_email": "jpatel@peelpolice.ca",
		"occ_number":      "PR2025001",
		"incident_code":   "203",
		"session_token":   "tok-123",
	}
	for k, v := range wantFields {
		if got.fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, got.fields[k], v)
		}
	}

	// Data fields arrive in sorted order; only the trailing token field may
	// break the ordering.
	order := got.fieldOrder
	if len(order) > 0 && order[len(order)-1] == legacyTokenField {
		order = order[:len(order)-1]
	}
	if !sort.StringsAreSorted(order) {
		t.Errorf("fields not sorted: %v", order)
	}

	doc, ok := got.files[legacyPartDocument]
	if !ok || doc.data != "rendered document" {
		t.Errorf("document part = %+v", doc)
	}
	if !strings.HasSuffix(doc.filename, ".txt") {
		t.Errorf("document filename = %q", doc.filename)
	}
	export, ok := got.files[legacyPartExport]
	if !ok || export.filename != "export.json" {
		t.Errorf("export part = %+v", export)
	}
}

func TestLegacySend_NoTokenField(t *testing.T) {
	f := newFakeLegacyEndpoint(t)

	tr, err := NewLegacy(config.LegacyConfig{Endpoint: f.endpoint()})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(context.Background(), legacySubmission()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, ok := f.requests[0].fields[legacyTokenField]; ok {
		t.Error("session_token sent with no token configured")
	}
}

func TestLegacySend_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   http.Header
		wantKind Kind
	}{
		{"client rejection", http.StatusUnprocessableEntity, nil, KindServerRejected},
		{"rate limited", http.StatusTooManyRequests, http.Header{"Retry-After": []string{"7"}}, KindRateLimited},
		{"gateway timeout", http.StatusGatewayTimeout, nil, KindTimeout},
		{"server error", http.StatusInternalServerError, nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeLegacyEndpoint(t)
			f.status = tt.status
			f.header = tt.header

			tr, err := NewLegacy(config.LegacyConfig{Endpoint: f.endpoint()})
			if err != nil {
				t.Fatal(err)
			}
			err = tr.Send(context.Background(), legacySubmission())

			var terr *Error
			if !errors.As(err, &terr) {
				t.Fatalf("Send = %v, want transport error", err)
			}
			if terr.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", terr.Kind, tt.wantKind)
			}
			if tt.wantKind == KindRateLimited && terr.RetryAfter != 7*time.Second {
				t.Errorf("RetryAfter = %v, want 7s", terr.RetryAfter)
			}
			if tt.wantKind == KindServerRejected && terr.Retryable() {
				t.Error("rejection reported as retryable")
			}
		})
	}
}

func TestLegacySend_ConnectionFailure(t *testing.T) {
	f := newFakeLegacyEndpoint(t)
	endpoint := f.endpoint()
	f.srv.Close()

	tr, err := NewLegacy(config.LegacyConfig{Endpoint: endpoint})
	if err != nil {
		t.Fatal(err)
	}
	err = tr.Send(context.Background(), legacySubmission())

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Send = %v, want transport error", err)
	}
	if terr.Kind != KindOffline {
		t.Errorf("kind = %s, want offline", terr.Kind)
	}
	if !terr.Retryable() {
		t.Error("connection failure reported as non-retryable")
	}
}

func TestNewLegacy_RequiresEndpoint(t *testing.T) {
	if _, err := NewLegacy(config.LegacyConfig{}); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("NewLegacy = %v, want ErrNoEndpoint", err)
	}
}
