package ess

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/devmesh/retrieval-orchestrator/internal/apperr"
	"github.com/devmesh/retrieval-orchestrator/pkg/models"
)

// BindingCache holds the per-tenant (cc_pair_id, document_set_id) binding
// (spec §4.5.1), backed by an LRU so it self-bounds, with writes guarded
// by a per-tenant mutex obtained from a striped lock map (spec §5).
type BindingCache struct {
	cache  *lru.Cache[string, models.ESSBinding]
	stripe [32]sync.Mutex
}

func NewBindingCache(size int) *BindingCache {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, models.ESSBinding](size)
	return &BindingCache{cache: c}
}

func (b *BindingCache) lockFor(tenantID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return &b.stripe[h.Sum32()%uint32(len(b.stripe))]
}

func (b *BindingCache) get(tenantID string) (models.ESSBinding, bool) {
	return b.cache.Get(tenantID)
}

func (b *BindingCache) put(binding models.ESSBinding) {
	b.cache.Add(binding.TenantID, binding)
}

// ccPairStatus is the subset of CC-pair readiness fields spec §4.5.1 checks.
type ccPairStatus struct {
	Status          string `json:"status"`
	AccessType      string `json:"access_type"`
	NumDocsIndexed  int    `json:"num_docs_indexed"`
	Indexing        bool   `json:"indexing"`
}

func (s ccPairStatus) ready() bool {
	return s.Status == "ACTIVE" && s.AccessType == "public" && s.NumDocsIndexed > 0 && !s.Indexing
}

// EnsureDocumentSet implements spec §4.5.1: return the cached binding if
// present, otherwise check CC-pair readiness (proceeding with only a
// warning if not ready — some corpora are indexed out-of-band), create a
// document set (falling back from the admin to the non-admin endpoint on
// 404/405), and persist the result.
func (c *Client) EnsureDocumentSet(ctx context.Context, cache *BindingCache, tenantID string, ccPairID int) (int, error) {
	const op = "ess.EnsureDocumentSet"

	if b, ok := cache.get(tenantID); ok {
		return b.DocumentSetID, nil
	}

	lock := cache.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the lock: another goroutine may have
	// populated the binding while we waited.
	if b, ok := cache.get(tenantID); ok {
		return b.DocumentSetID, nil
	}

	status, err := c.ccPairStatus(ctx, ccPairID)
	if err != nil {
		return 0, apperr.Wrap(apperr.BackendTransient, op, err)
	}
	if !status.ready() {
		c.logger.Warn("cc-pair not fully ready, proceeding anyway", map[string]any{"tenant_id": tenantID, "cc_pair_id": ccPairID, "status": status.Status})
	}

	docSetID, err := c.createDocumentSet(ctx, ccPairID)
	if err != nil {
		return 0, apperr.Wrap(apperr.BackendTransient, op, err)
	}

	cache.put(models.ESSBinding{TenantID: tenantID, CCPairID: ccPairID, DocumentSetID: docSetID})
	return docSetID, nil
}

// ccPairStatus calls the validated readiness endpoint GET
// /manage/admin/cc-pair/{cc_pair_id} (spec §6; path param, not a query
// param — the query-param form 404s against a real Onyx deployment).
func (c *Client) ccPairStatus(ctx context.Context, ccPairID int) (ccPairStatus, error) {
	var status ccPairStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/manage/admin/cc-pair/"+strconv.Itoa(ccPairID), nil)
	if err != nil {
		return status, err
	}

	resp, err := c.do(req)
	if err != nil {
		return status, err
	}
	defer func() { _ = resp.Body.Close() }()
	return status, json.NewDecoder(resp.Body).Decode(&status)
}

func (c *Client) createDocumentSet(ctx context.Context, ccPairID int) (int, error) {
	docSetID, err := c.postDocumentSet(ctx, "/manage/admin/document-set", ccPairID)
	if err == nil {
		return docSetID, nil
	}
	var ce *ClassifiedError
	if asClassified(err, &ce) && (ce.Status == http.StatusNotFound || ce.Status == http.StatusMethodNotAllowed) {
		return c.postDocumentSet(ctx, "/manage/document-set", ccPairID)
	}
	return 0, err
}

func (c *Client) postDocumentSet(ctx context.Context, path string, ccPairID int) (int, error) {
	body := strings.NewReader(`{"cc_pair_ids":[` + strconv.Itoa(ccPairID) + `]}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func asClassified(err error, target **ClassifiedError) bool {
	ce, ok := err.(*ClassifiedError)
	if ok {
		*target = ce
	}
	return ok
}
