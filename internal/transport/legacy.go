package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"time"

	"github.com/evidenceworks/reqforms/internal/config"
)

// Multipart file part names the legacy endpoint expects.
const (
	legacyPartDocument = "fileAttachmentA"
	legacyPartExport   = "fileAttachmentB"
	legacyTokenField   = "session_token"
)

// ErrNoEndpoint is returned when the legacy endpoint is not configured.
var ErrNoEndpoint = errors.New("legacy endpoint not configured")

// LegacyTransport submits the flattened payload as a multipart POST to the
// legacy intake endpoint.
type LegacyTransport struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewLegacy creates the legacy transport from configuration.
func NewLegacy(cfg config.LegacyConfig) (*LegacyTransport, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	return &LegacyTransport{
		endpoint: cfg.Endpoint,
		token:    cfg.SessionToken,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Send posts the legacy fields and both file parts. Fields are written in
// sorted order so the request body is deterministic.
func (t *LegacyTransport) Send(ctx context.Context, sub *Submission) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	names := make([]string, 0, len(sub.LegacyFields))
	for name := range sub.LegacyFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, sub.LegacyFields[name]); err != nil {
			return &Error{Kind: KindUnknown, Err: fmt.Errorf("write field %s: %w", name, err)}
		}
	}

	// The hosting environment's verification token is an opaque
	// pass-through, included only when present.
	if t.token != "" {
		if err := w.WriteField(legacyTokenField, t.token); err != nil {
			return &Error{Kind: KindUnknown, Err: fmt.Errorf("write token field: %w", err)}
		}
	}

	if err := writePart(w, legacyPartDocument, sub.Attachment(AttachmentDocument)); err != nil {
		return err
	}
	if err := writePart(w, legacyPartExport, sub.Attachment(AttachmentExport)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("finalize multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyErr(err)
	}
	defer resp.Body.Close()

	if terr := classifyStatus(resp.StatusCode, resp.Header); terr != nil {
		return terr
	}
	return nil
}

func writePart(w *multipart.Writer, partName string, a *Attachment) error {
	if a == nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("missing attachment for part %s", partName)}
	}
	part, err := w.CreateFormFile(partName, a.Filename)
	if err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("create part %s: %w", partName, err)}
	}
	if _, err := part.Write(a.Data); err != nil {
		return &Error{Kind: KindUnknown, Err: fmt.Errorf("write part %s: %w", partName, err)}
	}
	return nil
}
