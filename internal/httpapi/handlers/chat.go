package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitalpath/coach-gateway/internal/apperr"
	"github.com/vitalpath/coach-gateway/internal/chat"
	"github.com/vitalpath/coach-gateway/internal/common"
	"github.com/vitalpath/coach-gateway/internal/httpapi/middleware"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// failErr is the single boundary translating the error taxonomy into HTTP.
func failErr(c *gin.Context, err error) {
	switch apperr.KindOf(err) {
	case apperr.Unauthenticated:
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case apperr.InvalidArgument:
		common.Fail(c, http.StatusBadRequest, 10001, "invalid argument")
	case apperr.ResourceExhausted:
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    42901,
			"message": "rate limit exceeded",
			"data":    gin.H{"retry_after_ms": apperr.RetryAfter(err)},
		})
	case apperr.NotFound:
		common.Fail(c, http.StatusNotFound, 40004, "not found")
	case apperr.Unavailable:
		common.Fail(c, http.StatusServiceUnavailable, 50301, "temporarily unavailable")
	default:
		log.Printf("handler: internal error: %v", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sid, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}
	sess := &chat.Session{SessionID: sid, UserID: uid, IsActive: true}
	if err := h.DB.WithContext(c.Request.Context()).Create(sess).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID})
}

type sendMessageReq struct {
	// session_id empty means: start a new conversation
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// the whole turn, model call and fallback included, fits in the budget
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.Cfg.RequestBudget)
	defer cancel()

	res, err := h.ChatSvc.Send(ctx, uid, req.SessionID, req.Message)
	if err != nil {
		failErr(c, err)
		return
	}

	common.OK(c, gin.H{
		"session_id":       res.SessionID,
		"reply":            res.Reply,
		"type":             res.Type,
		"tokens_used":      res.TokensUsed,
		"response_time_ms": res.ResponseTimeMs,
		"was_fallback":     res.WasFallback,
		"was_from_cache":   res.WasFromCache,
	})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeIDStr := c.Query("before_id")
	var beforeID uint64
	if beforeIDStr != "" {
		if n, err := strconv.ParseUint(beforeIDStr, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		failErr(c, err)
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

// SendChatMessageAsync runs the admission half synchronously (so validation,
// scope rejection and rate limiting answer immediately) and queues the
// generation half for the worker.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	sess, rejected, err := h.ChatSvc.PrepareTurn(c.Request.Context(), uid, req.SessionID, req.Message)
	if err != nil {
		failErr(c, err)
		return
	}
	if rejected != nil {
		common.OK(c, gin.H{
			"session_id":   rejected.SessionID,
			"reply":        rejected.Reply,
			"type":         rejected.Type,
			"was_fallback": false,
		})
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[SendChatMessageAsync] NewULID failed uid=%d session_id=%s err=%v", uid, sess.SessionID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &chat.Job{
		ID:        jobID,
		UserID:    uid,
		SessionID: sess.SessionID,
		Prompt:    req.Message,
		Status:    chat.JobQueued,
	}
	if err := h.ChatSvc.CreateJob(c.Request.Context(), j); err != nil {
		log.Printf("[SendChatMessageAsync] CreateJob failed uid=%d session_id=%s job_id=%s err=%v", uid, sess.SessionID, jobID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
		log.Printf("[SendChatMessageAsync] PublishJob failed uid=%d session_id=%s job_id=%s err=%v", uid, sess.SessionID, j.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.OK(c, gin.H{"job_id": j.ID, "session_id": sess.SessionID})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		failErr(c, err)
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"session_id":        j.SessionID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}

// Ping doubles as a readiness check: the rate limiter and context cache are
// down whenever Redis is.
func (h *Handler) Ping(c *gin.Context) {
	if err := h.Redis.Ping(c.Request.Context()); err != nil {
		common.Fail(c, http.StatusServiceUnavailable, 50302, "redis unavailable")
		return
	}
	common.OK(c, gin.H{"ts": time.Now().Unix()})
}
