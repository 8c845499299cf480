package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	posts *services.PostService
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(posts *services.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.GET("/posts", h.GetPosts) // all visible posts, or one user's with ?username=
	g.PUT("/posts/:id", h.UpdatePost)
	g.DELETE("/posts/:id", h.DeletePost)
	g.GET("/users/:username/posts", h.GetUserPosts)
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.posts.CreatePost(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusCreated, post)
}

// GetPost retrieves a single post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	view, err := h.posts.GetPost(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, view)
}

// GetPosts lists posts visible to the caller
func (h *PostHandler) GetPosts(c echo.Context) error {
	if username := c.QueryParam("username"); username != "" {
		return h.userPosts(c, username)
	}
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c, 10)
	views, total, err := h.posts.ListPosts(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "posts", views, page, limit, total)
}

// GetUserPosts lists one user's posts, subject to their privacy
func (h *PostHandler) GetUserPosts(c echo.Context) error {
	return h.userPosts(c, c.Param("username"))
}

func (h *PostHandler) userPosts(c echo.Context, username string) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c, 10)
	views, total, err := h.posts.UserPosts(c.Request().Context(), userID, username, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "posts", views, page, limit, total)
}

// UpdatePost updates a post owned by the caller
func (h *PostHandler) UpdatePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req models.UpdatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.posts.UpdatePost(c.Request().Context(), userID, c.Param("id"), req)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, post)
}

// DeletePost deletes a post owned by the caller
func (h *PostHandler) DeletePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.posts.DeletePost(c.Request().Context(), userID, c.Param("id")); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
