package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

type transitionFunc func(ctx context.Context, actorID uint, username string) (*services.RelationResult, error)

type userListFunc func(ctx context.Context, viewerID uint, username string, page, limit int) ([]models.UserCompact, int64, error)

type ownListFunc func(ctx context.Context, actorID uint, page, limit int) ([]models.UserCompact, int64, error)

// RelationHandler handles follow, close-friend and block HTTP requests
type RelationHandler struct {
	relations *services.RelationService
}

// NewRelationHandler creates a new RelationHandler
func NewRelationHandler(relations *services.RelationService) *RelationHandler {
	return &RelationHandler{relations: relations}
}

// RegisterRelationRoutes registers relation routes
func (h *RelationHandler) RegisterRelationRoutes(g *echo.Group) {
	g.POST("/users/:username/follow", h.transition(h.relations.Follow))
	g.DELETE("/users/:username/follow", h.transition(h.relations.Unfollow))
	g.POST("/users/:username/follow-request/accept", h.transition(h.relations.AcceptFollowRequest))
	g.POST("/users/:username/follow-request/reject", h.transition(h.relations.RejectFollowRequest))
	g.DELETE("/users/:username/follower", h.transition(h.relations.DeleteFollower))
	g.POST("/users/:username/block", h.transition(h.relations.Block))
	g.DELETE("/users/:username/block", h.transition(h.relations.Unblock))
	g.POST("/users/:username/close-friend", h.transition(h.relations.AddCloseFriend))
	g.DELETE("/users/:username/close-friend", h.transition(h.relations.RemoveCloseFriend))

	g.GET("/users/:username/follow-status", h.GetFollowStatus)
	g.GET("/users/:username/followers", h.userList(h.relations.Followers))
	g.GET("/users/:username/following", h.userList(h.relations.Following))
	g.GET("/users/:username/relation-history", h.GetHistory)

	g.GET("/follow-requests", h.ownList(h.relations.FollowRequests))
	g.GET("/close-friends", h.ownList(h.relations.CloseFriends))
	g.GET("/blocked", h.ownList(h.relations.Blocked))
}

func (h *RelationHandler) transition(fn transitionFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := currentUserID(c)
		if err != nil {
			return err
		}
		res, err := fn(c.Request().Context(), userID, c.Param("username"))
		if err != nil {
			return httpError(c, err)
		}
		return ok(c, http.StatusOK, res)
	}
}

func (h *RelationHandler) userList(fn userListFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := currentUserID(c)
		if err != nil {
			return err
		}
		page, limit := pageParams(c, 20)
		users, total, err := fn(c.Request().Context(), userID, c.Param("username"), page, limit)
		if err != nil {
			return httpError(c, err)
		}
		return paged(c, "users", users, page, limit, total)
	}
}

func (h *RelationHandler) ownList(fn ownListFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := currentUserID(c)
		if err != nil {
			return err
		}
		page, limit := pageParams(c, 20)
		users, total, err := fn(c.Request().Context(), userID, page, limit)
		if err != nil {
			return httpError(c, err)
		}
		return paged(c, "users", users, page, limit, total)
	}
}

// GetFollowStatus reports the caller's follow state towards a user
func (h *RelationHandler) GetFollowStatus(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	status, err := h.relations.GetFollowStatus(c.Request().Context(), userID, c.Param("username"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"status": status})
}

// GetHistory returns every relation row between the caller and a user, oldest first
func (h *RelationHandler) GetHistory(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	history, err := h.relations.History(c.Request().Context(), userID, c.Param("username"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"history": history})
}
