package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timottowitz/covidvaccinedetox/internal/logger"
	"github.com/timottowitz/covidvaccinedetox/internal/repos"
	"github.com/timottowitz/covidvaccinedetox/internal/types"
)

type FeedHandler struct {
	log  *logger.Logger
	feed repos.FeedItemRepo
}

func NewFeedHandler(log *logger.Logger, feed repos.FeedItemRepo) *FeedHandler {
	return &FeedHandler{log: log.With("handler", "FeedHandler"), feed: feed}
}

// GET /api/feed?tag=
func (h *FeedHandler) ListFeed(c *gin.Context) {
	items, err := h.feed.List(c.Request.Context(), nil, c.Query("tag"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "feed_list_failed", err)
		return
	}
	if items == nil {
		items = []*types.FeedItem{}
	}
	RespondOK(c, items)
}
