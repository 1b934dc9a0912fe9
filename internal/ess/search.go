package ess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/internal/obs"
)

// SourceDoc is one document ESS cited in a search/chat answer.
type SourceDoc struct {
	DocumentID string  `json:"document_id"`
	Link       string  `json:"link"`
	Score      float64 `json:"score"`
}

// SearchResult is the outcome of Search — note it is returned as a
// structured value rather than raised, so the orchestrator can fall back
// even after retries are exhausted (spec §4.5.2).
type SearchResult struct {
	Success    bool        `json:"success"`
	Answer     string      `json:"answer,omitempty"`
	SourceDocs []SourceDoc `json:"source_docs,omitempty"`
	Attempt    int         `json:"attempt"`
	Error      string      `json:"error,omitempty"`
}

type answerFragment struct {
	Answer  string `json:"answer"`
	Message string `json:"message"`
	Context struct {
		TopDocuments []SourceDoc `json:"top_documents"`
	} `json:"context_docs"`
}

// Search implements spec §4.5.2: create a fresh chat session per attempt,
// send a message constrained to docSetID, parse the response (falling
// back to scanning for the last parseable JSON line on malformed bodies),
// and retry up to maxRetries times with a linear 5s backoff between
// attempts when the answer comes back empty.
func (c *Client) Search(ctx context.Context, query string, docSetID, maxRetries int) SearchResult {
	logger := c.logger.WithPrefix("search")
	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("search attempt", map[string]any{"attempt": attempt, "state": StateSessionCreating})

		sessionID, err := c.createChatSession(ctx)
		if err != nil {
			if !retryable(err) {
				logger.Warn("session creation failed with non-retryable error", map[string]any{"attempt": attempt, "error": err.Error()})
				return SearchResult{Success: false, Attempt: attempt, Error: err.Error()}
			}
			logger.Warn("session creation failed", map[string]any{"attempt": attempt, "error": err.Error(), "state": StateTransportError})
			time.Sleep(5 * time.Second)
			continue
		}

		frag, err := c.sendMessage(ctx, sessionID, query, []int{docSetID})
		if err != nil {
			if !retryable(err) {
				logger.Warn("message send failed with non-retryable error", map[string]any{"attempt": attempt, "error": err.Error()})
				return SearchResult{Success: false, Attempt: attempt, Error: err.Error()}
			}
			logger.Warn("message send failed", map[string]any{"attempt": attempt, "error": err.Error(), "state": StateTransportError})
			time.Sleep(5 * time.Second)
			continue
		}

		answer := frag.Answer
		if answer == "" {
			answer = frag.Message
		}
		if answer != "" {
			return SearchResult{Success: true, Answer: answer, SourceDocs: frag.Context.TopDocuments, Attempt: attempt}
		}
		logger.Info("empty answer, retrying", map[string]any{"attempt": attempt, "state": StateEmpty})
		time.Sleep(5 * time.Second)
	}
	return SearchResult{Success: false, Attempt: maxRetries, Error: "exhausted retries with no answer"}
}

// SimpleChat implements spec §4.5.4: a single message, no session or
// document-set, posted straight to the simple-chat endpoint (spec §6
// `POST /chat/send-message-simple-api`) rather than through the
// session-creating Search path — used as a degraded fallback when
// targeted search is empty.
func (c *Client) SimpleChat(ctx context.Context, query string) (string, error) {
	const op = "ess.SimpleChat"

	payload := map[string]any{"message": query, "persona_id": c.cfg.PersonaID}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/send-message-simple-api", bytes.NewReader(raw))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.BackendTransient, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.BackendTransient, op, err)
	}
	return out.Answer, nil
}

func (c *Client) createChatSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/create-chat-session", bytes.NewReader([]byte(`{"persona_id":`+strconv.Itoa(c.cfg.PersonaID)+`}`)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		ChatSessionID string `json:"chat_session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ChatSessionID, nil
}

func (c *Client) sendMessage(ctx context.Context, sessionID, query string, docSetIDs []int) (answerFragment, error) {
	payload := map[string]any{
		"chat_session_id": sessionID,
		"message":         query,
		"retrieval_options": map[string]any{
			"run_search":        "always",
			"document_set_ids":  docSetIDs,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return answerFragment{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/send-message", bytes.NewReader(raw))
	if err != nil {
		return answerFragment{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return answerFragment{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return answerFragment{}, err
	}
	return parseLastValidJSON(body, c.logger)
}

// retryable reports whether err's classified Kind should be retried, per
// spec §4.5.6's differential-retry rule — an AuthFailed (or other
// non-retryable) classification must not be retried like a transient one.
// Unclassified errors (e.g. a response body that fails to decode) are
// treated as retryable, matching the loop's prior behavior for anything
// it can't classify.
func retryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind.Retryable()
	}
	return true
}

// parseLastValidJSON implements spec §4.5.2/3: try the whole body first;
// if that fails, scan newline-delimited fragments in reverse for the last
// one that parses. Returning nothing parseable is a StreamTruncated
// failure per §4.5.6.
func parseLastValidJSON(body []byte, logger obs.Logger) (answerFragment, error) {
	var frag answerFragment
	if err := json.Unmarshal(body, &frag); err == nil {
		return frag, nil
	}

	lines := splitLines(body)
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &frag); err == nil {
			return frag, nil
		}
	}
	logger.Warn("no parseable JSON line found in ESS response", map[string]any{"body_len": len(body)})
	return answerFragment{}, &ClassifiedError{Kind: KindStreamTruncated, Err: errNoParseableLine}
}

var errNoParseableLine = errors.New("ess: no parseable JSON fragment in response body")

func splitLines(body []byte) [][]byte {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var lines [][]byte
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		lines = append(lines, line)
	}
	return lines
}
