package handler

import (
	"net/http"
	"strconv"

	"GreenChat/global"
	"GreenChat/logger"
	"GreenChat/middleware"
	chatsvc "GreenChat/module/chat/service"
	"GreenChat/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the REST read side of the chat core.
type Handler struct {
	pipeline *chatsvc.Pipeline
	presence *chatsvc.Presence
	log      *zap.Logger
}

func New(pipeline *chatsvc.Pipeline, presence *chatsvc.Presence) *Handler {
	return &Handler{pipeline: pipeline, presence: presence, log: logger.Named("rest")}
}

func (h *Handler) Register(rt *middleware.Router) {
	auth := middleware.RouteOpt{IsAuth: true}
	rt.GET("/teams/:teamId/messages", h.ListRecent, auth)
	rt.GET("/teams/:teamId/messages/cached", h.ListCached, auth)
	rt.GET("/teams/:teamId/online", h.Online, auth)
	rt.GET("/teams/:teamId/settings", h.Settings, auth)
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := errs.Code(err)
	status := global.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Int("code", code), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, global.Fail(err))
}

func teamID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("teamId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.ErrArgs.WrapMsg("bad team id", "teamId", c.Param("teamId"))
	}
	return id, nil
}

// ListRecent returns the newest messages of a team, oldest first.
// ?limit= caps the count.
func (h *Handler) ListRecent(c *gin.Context) {
	roomID, err := teamID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			h.fail(c, errs.ErrArgs.WrapMsg("bad limit", "limit", s))
			return
		}
	}
	msgs, err := h.pipeline.ListRecent(c.Request.Context(), roomID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success(msgs))
}

func (h *Handler) ListCached(c *gin.Context) {
	roomID, err := teamID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.pipeline.CheckRoom(c.Request.Context(), roomID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, global.Success(h.pipeline.ListCached(c.Request.Context(), roomID)))
}

func (h *Handler) Online(c *gin.Context) {
	roomID, err := teamID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.pipeline.CheckRoom(c.Request.Context(), roomID); err != nil {
		h.fail(c, err)
		return
	}
	members := h.presence.OnlineMembers(c.Request.Context(), roomID)
	c.JSON(http.StatusOK, global.Success(chatsvc.OnlineSnapshot{RoomID: roomID, Members: members}))
}

func (h *Handler) Settings(c *gin.Context) {
	roomID, err := teamID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.pipeline.CheckRoom(c.Request.Context(), roomID); err != nil {
		h.fail(c, err)
		return
	}
	st, err := h.pipeline.Settings().Get(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, errs.ErrStorageFailure.WrapMsg("load settings", "err", err))
		return
	}
	c.JSON(http.StatusOK, global.Success(st))
}
