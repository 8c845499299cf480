package handlers

import (
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	posts *services.PostService
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(posts *services.PostService) *FeedHandler {
	return &FeedHandler{posts: posts}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
}

// GetFeed returns posts by the caller and the accounts they follow, newest first
func (h *FeedHandler) GetFeed(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c, 10)
	views, total, err := h.posts.Feed(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "posts", views, page, limit, total)
}
