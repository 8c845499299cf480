package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// LikeHandler handles like-related HTTP requests
type LikeHandler struct {
	posts *services.PostService
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(posts *services.PostService) *LikeHandler {
	return &LikeHandler{posts: posts}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/likes", h.LikePost)
	g.DELETE("/posts/:post_id/likes", h.UnlikePost)
	g.GET("/posts/:post_id/likes", h.GetLikers)
	g.GET("/posts/:post_id/likes/status", h.GetLikeStatus)
}

// LikePost likes a post. Liking twice is rejected.
func (h *LikeHandler) LikePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	status, err := h.posts.LikePost(c.Request().Context(), userID, c.Param("post_id"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, status)
}

// UnlikePost removes the caller's like from a post
func (h *LikeHandler) UnlikePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	status, err := h.posts.UnlikePost(c.Request().Context(), userID, c.Param("post_id"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, status)
}

// GetLikers lists the users who liked a post
func (h *LikeHandler) GetLikers(c echo.Context) error {
	users, err := h.posts.Likers(c.Request().Context(), c.Param("post_id"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"users": users})
}

func (h *LikeHandler) GetLikeStatus(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	status, err := h.posts.LikeStatus(c.Request().Context(), userID, c.Param("post_id"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, status)
}
