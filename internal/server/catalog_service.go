// file: internal/server/catalog_service.go
// version: 1.1.0
// guid: 8e9f0a1b-2c3d-4e5f-6a7b-8c9d0e1f2a3b

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opencatalog/streamvault/internal/catalog"
	"github.com/opencatalog/streamvault/internal/engine"
	"github.com/opencatalog/streamvault/internal/query"
)

// parseKeyParam decodes the :key path parameter ("server|username",
// URL-escaped by the client).
func (s *Server) parseKeyParam(c *gin.Context) (catalog.Key, bool) {
	key, err := catalog.ParseKey(c.Param("key"))
	if err != nil {
		s.RespondWithBadRequest(c, err.Error())
		return catalog.Key{}, false
	}
	return key, true
}

func (s *Server) parseCollectionParam(c *gin.Context) (catalog.Collection, bool) {
	col, err := catalog.ParseCollection(c.Param("collection"))
	if err != nil || !col.IsContent() {
		s.RespondWithBadRequest(c, "unknown collection "+c.Param("collection"))
		return "", false
	}
	return col, true
}

func (s *Server) listCatalogs(c *gin.Context) {
	catalogs, err := s.engine.Catalogs()
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	summaries := make([]CatalogSummary, 0, len(catalogs))
	for _, cat := range catalogs {
		counts := make(map[string]int, len(cat.Counts))
		for col, n := range cat.Counts {
			counts[string(col)] = n
		}
		summaries = append(summaries, CatalogSummary{
			Key:        cat.Key.String(),
			Hash:       cat.Key.Hash(),
			ImportedAt: cat.ImportedAt.Format(time.RFC3339),
			Counts:     counts,
		})
	}
	c.JSON(http.StatusOK, NewListResponse(summaries, len(summaries), 0, 0))
}

func (s *Server) getDefaultCatalog(c *gin.Context) {
	key, ok, err := s.engine.DefaultCatalog()
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if !ok {
		s.RespondWithNotFound(c, "no default catalog set")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key.String(), "hash": key.Hash()})
}

func (s *Server) setDefaultCatalog(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.RespondWithBadRequest(c, "invalid request: "+err.Error())
		return
	}
	key, err := catalog.ParseKey(req.Key)
	if err != nil {
		s.RespondWithBadRequest(c, err.Error())
		return
	}
	if err := s.engine.SetDefaultCatalog(key); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewMessageResponse("default catalog set", ""))
}

// refreshCatalog resolves cache-vs-fetch for a catalog through the
// orchestrator. Without a configured document source the endpoint can only
// serve already-imported data.
func (s *Server) refreshCatalog(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	if s.fetcher == nil {
		s.RespondWithError(c, http.StatusServiceUnavailable, "no document source configured", "NO_FETCHER")
		return
	}

	res := s.engine.LoadCatalog(c.Request.Context(), key, s.fetcher)
	resp := RefreshResponse{
		Success:  res.Success,
		Cached:   res.Cached,
		Fallback: res.Fallback,
		Message:  res.Message,
	}
	if res.Catalog != nil {
		resp.Catalog = summaryOf(res.Catalog)
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (s *Server) cancelRefresh(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	s.engine.CancelFetch(key)
	c.JSON(http.StatusOK, NewMessageResponse("fetch cancelled", ""))
}

// importCatalog accepts a full catalog document in the request body and
// imports it atomically.
func (s *Server) importCatalog(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	var doc catalog.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		s.RespondWithBadRequest(c, "invalid catalog document: "+err.Error())
		return
	}
	cat, err := s.engine.ImportDocument(key, &doc)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"catalog": summaryOf(cat)})
}

func (s *Server) exportCatalog(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	doc, err := s.engine.ExportDocument(key)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) getCategories(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	col, ok := s.parseCollectionParam(c)
	if !ok {
		return
	}
	categories, err := s.engine.GetCategories(c.Request.Context(), key, col)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	c.JSON(http.StatusOK, NewListResponse(categories, len(categories), 0, 0))
}

func (s *Server) getWindow(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	col, ok := s.parseCollectionParam(c)
	if !ok {
		return
	}
	categoryID := c.Query("category")
	if categoryID == "" {
		s.RespondWithBadRequest(c, "category query parameter required")
		return
	}
	view, err := s.engine.GetWindow(c.Request.Context(), key, col, categoryID)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) loadMore(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	col, ok := s.parseCollectionParam(c)
	if !ok {
		return
	}
	categoryID := c.Query("category")
	if categoryID == "" {
		s.RespondWithBadRequest(c, "category query parameter required")
		return
	}
	if err := s.engine.LoadMore(c.Request.Context(), key, col, categoryID); err != nil {
		s.respondEngineError(c, err)
		return
	}
	view, err := s.engine.GetWindow(c.Request.Context(), key, col, categoryID)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) scrollWindow(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	col, ok := s.parseCollectionParam(c)
	if !ok {
		return
	}
	categoryID := c.Query("category")
	if categoryID == "" {
		s.RespondWithBadRequest(c, "category query parameter required")
		return
	}
	var req struct {
		Index int `json:"index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.RespondWithBadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := s.engine.ScrollTo(c.Request.Context(), key, col, categoryID, req.Index); err != nil {
		s.respondEngineError(c, err)
		return
	}
	view, err := s.engine.GetWindow(c.Request.Context(), key, col, categoryID)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) closeWindow(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	col, ok := s.parseCollectionParam(c)
	if !ok {
		return
	}
	categoryID := c.Query("category")
	if categoryID == "" {
		s.RespondWithBadRequest(c, "category query parameter required")
		return
	}
	s.engine.CloseCategory(key, col, categoryID)
	c.Status(http.StatusNoContent)
}

func (s *Server) search(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	text := c.Query("q")
	if text == "" {
		s.RespondWithBadRequest(c, "q query parameter required")
		return
	}

	var cols []catalog.Collection
	if raw := c.Query("collection"); raw != "" {
		col, err := catalog.ParseCollection(raw)
		if err != nil || !col.IsContent() {
			s.RespondWithBadRequest(c, "unknown collection "+raw)
			return
		}
		cols = []catalog.Collection{col}
	}
	limit := ParseQueryInt(c, "limit", 0)

	items, err := s.engine.Search(c.Request.Context(), key, text, engine.SearchOptions{
		Collections: cols,
		Limit:       limit,
	})
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if items == nil {
		items = []catalog.Item{}
	}
	c.JSON(http.StatusOK, NewListResponse(items, len(items), limit, 0))
}

// runQuery executes an ad-hoc query against one catalog. SELECTs return
// items or groups; writes return the affected count.
func (s *Server) runQuery(c *gin.Context) {
	key, ok := s.parseKeyParam(c)
	if !ok {
		return
	}
	var q query.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		s.RespondWithBadRequest(c, "invalid query: "+err.Error())
		return
	}
	res, err := s.engine.Evaluator().Execute(c.Request.Context(), key, q)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func summaryOf(cat *catalog.Catalog) CatalogSummary {
	counts := make(map[string]int, len(cat.Counts))
	for col, n := range cat.Counts {
		counts[string(col)] = n
	}
	return CatalogSummary{
		Key:        cat.Key.String(),
		Hash:       cat.Key.Hash(),
		ImportedAt: cat.ImportedAt.Format(time.RFC3339),
		Counts:     counts,
	}
}
