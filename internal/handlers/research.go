package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type ResearchHandler struct {
	log      *logger.Logger
	articles repos.ArticleRepo
}

func NewResearchHandler(log *logger.Logger, articles repos.ArticleRepo) *ResearchHandler {
	return &ResearchHandler{log: log.With("handler", "ResearchHandler"), articles: articles}
}

// GET /api/research?tag=&sort_by=date|citations
func (h *ResearchHandler) ListResearch(c *gin.Context) {
	articles, err := h.articles.List(c.Request.Context(), nil, c.Query("tag"), c.DefaultQuery("sort_by", "date"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "research_list_failed", err)
		return
	}
	if articles == nil {
		articles = []*types.ResearchArticle{}
	}
	RespondOK(c, articles)
}
