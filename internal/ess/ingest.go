package ess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// Section is one piece of a document body, each with an optional link
// back to its source location.
type Section struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// IngestResult is the outcome of Ingest (spec §4.5.3).
type IngestResult struct {
	DocumentID    string `json:"document_id"`
	SectionsCount int    `json:"sections_count"`
	Attempts      int    `json:"attempts"`
}

// Ingest implements spec §4.5.3: format the document as a single file
// with a leading `#ONYX_METADATA=<json>` header line followed by the
// caller's sections, and POST multipart to the file-upload endpoint. The
// streaming/SSE ingestion endpoint is never used — it returns HTML when
// called with a bearer token (spec §4.5 constraint 1).
func (c *Client) Ingest(ctx context.Context, tenantID string, doc *models.Document, sections []Section) (*IngestResult, error) {
	const op = "ess.Ingest"

	semanticID := deriveSemanticIdentifier(doc.Source, doc.Title)
	body, err := formatUploadBody(semanticID, tenantID, doc, sections)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}

	attempts := 0
	var documentID string
	err = c.withRetry(ctx, func() error {
		attempts++
		docID, uploadErr := c.uploadFile(ctx, semanticID, body)
		if uploadErr != nil {
			return uploadErr
		}
		documentID = docID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{DocumentID: documentID, SectionsCount: len(sections), Attempts: attempts}, nil
}

func deriveSemanticIdentifier(source, title string) string {
	base := filepath.Base(source)
	if title != "" {
		return title
	}
	return base
}

// formatUploadBody concatenates sections into one file body prefixed by a
// metadata header line, per spec §4.5.3.
func formatUploadBody(semanticID, tenantID string, doc *models.Document, sections []Section) ([]byte, error) {
	meta := map[string]any{
		"tenant_id":           tenantID,
		"document_id":         doc.ID,
		"semantic_identifier": semanticID,
		"source":              doc.Source,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("#ONYX_METADATA=")
	sb.Write(metaJSON)
	sb.WriteString("\n")
	for _, s := range sections {
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

func (c *Client) uploadFile(ctx context.Context, filename string, body []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filename+".txt")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(body); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	// /user/file/upload is the endpoint spec §6 names and the one the
	// original ingestion client documents as the working one — the
	// admin/connector upload path is a different, less-reliable flow.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/user/file/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	// The API returns a JSON array with a single object, not a bare object.
	var out []struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ess: decode upload response: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("ess: upload response array was empty")
	}
	return out[0].DocumentID, nil
}
