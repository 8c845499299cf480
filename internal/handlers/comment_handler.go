package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// CommentHandler handles comment-related HTTP requests
type CommentHandler struct {
	comments *services.CommentService
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

// RegisterCommentRoutes registers comment-related routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.POST("/posts/:post_id/comments", h.CreateComment)
	g.GET("/posts/:post_id/comments", h.GetComments)
	g.GET("/comments/:id/replies", h.GetReplies)
	g.PUT("/comments/:id", h.UpdateComment)
	g.DELETE("/comments/:id", h.DeleteComment)
	g.POST("/comments/:id/likes", h.LikeComment)
	g.DELETE("/comments/:id/likes", h.UnlikeComment)
}

// CreateComment creates a comment or, with parent_id, a reply
func (h *CommentHandler) CreateComment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	comment, err := h.comments.CreateComment(c.Request().Context(), userID, c.Param("post_id"), req)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusCreated, comment)
}

// GetComments returns the top-level comments of a post
func (h *CommentHandler) GetComments(c echo.Context) error {
	page, limit := pageParams(c, 20)
	comments, total, err := h.comments.GetComments(c.Request().Context(), c.Param("post_id"), page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "comments", comments, page, limit, total)
}

func (h *CommentHandler) GetReplies(c echo.Context) error {
	id, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}
	replies, err := h.comments.GetReplies(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"replies": replies})
}

// UpdateComment edits a comment owned by the caller
func (h *CommentHandler) UpdateComment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}
	var req models.UpdateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	comment, err := h.comments.UpdateComment(c.Request().Context(), userID, id, req)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, comment)
}

// DeleteComment deletes a comment owned by the caller together with its replies
func (h *CommentHandler) DeleteComment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}
	if err := h.comments.DeleteComment(c.Request().Context(), userID, id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CommentHandler) LikeComment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}
	status, err := h.comments.LikeComment(c.Request().Context(), userID, id)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, status)
}

func (h *CommentHandler) UnlikeComment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUintParam(c, "id", "comment")
	if err != nil {
		return err
	}
	status, err := h.comments.UnlikeComment(c.Request().Context(), userID, id)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, status)
}
