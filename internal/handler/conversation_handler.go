package handler

import (
	"github.com/murilobezs/empowerup-sub002/internal/service"
	"github.com/murilobezs/empowerup-sub002/pkg/jwt"
	"github.com/murilobezs/empowerup-sub002/pkg/response"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 会话处理器
type ConversationHandler struct {
	service *service.ConversationService
}

// NewConversationHandler 创建ConversationHandler实例
func NewConversationHandler(s *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: s}
}

// List 获取当前用户的会话列表
func (h *ConversationHandler) List(c *gin.Context) {
	userID := jwt.GetUserID(c)

	summaries, err := h.service.ListForUser(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取会话列表失败")
		return
	}

	response.SuccessWithMessage(c, "获取会话列表成功", summaries)
}

// Get 获取单个会话摘要
func (h *ConversationHandler) Get(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	summary, err := h.service.Summarize(c.Request.Context(), conversationID, userID)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "获取会话失败")
		return
	}

	response.SuccessWithMessage(c, "获取会话成功", summary)
}

// CreatePrivate 获取或创建私聊会话（幂等）
func (h *ConversationHandler) CreatePrivate(c *gin.Context) {
	userID := jwt.GetUserID(c)

	type req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := h.service.GetOrCreatePrivate(c.Request.Context(), userID, r.UserID)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "创建会话失败")
		return
	}

	response.SuccessWithMessage(c, "获取会话成功", summary)
}

// CreateGroup 创建群聊会话
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID := jwt.GetUserID(c)

	type req struct {
		Name       string `json:"name"`
		Image      string `json:"image"`
		CoverImage string `json:"cover_image"`
		Visibility string `json:"visibility"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	summary, err := h.service.CreateGroup(c.Request.Context(), userID, r.Name, r.Image, r.CoverImage, r.Visibility)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "创建群聊失败")
		return
	}

	response.SuccessWithMessage(c, "创建群聊成功", summary)
}

// ListParticipants 获取会话参与者
func (h *ConversationHandler) ListParticipants(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	participants, err := h.service.ListParticipants(c.Request.Context(), conversationID, userID)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "获取参与者失败")
		return
	}

	response.SuccessWithMessage(c, "获取参与者成功", participants)
}

// AddParticipant 拉人进群
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	type req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.AddParticipant(c.Request.Context(), conversationID, userID, r.UserID); err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "添加参与者失败")
		return
	}

	response.SuccessWithMessage(c, "添加参与者成功", nil)
}

// RemoveParticipant 移除参与者
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.service.RemoveParticipant(c.Request.Context(), conversationID, userID, targetID); err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "移除参与者失败")
		return
	}

	response.SuccessWithMessage(c, "移除参与者成功", nil)
}

// Leave 退出会话
func (h *ConversationHandler) Leave(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	if err := h.service.Leave(c.Request.Context(), conversationID, userID); err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "退出会话失败")
		return
	}

	response.SuccessWithMessage(c, "已退出会话", nil)
}

// UpdateFlags 更新免打扰/收藏标记
func (h *ConversationHandler) UpdateFlags(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	type req struct {
		Muted    *bool `json:"muted"`
		Favorite *bool `json:"favorite"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if r.Muted == nil && r.Favorite == nil {
		response.BadRequest(c, "至少提供一个标记")
		return
	}

	if err := h.service.UpdateFlags(c.Request.Context(), conversationID, userID, r.Muted, r.Favorite); err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "更新标记失败")
		return
	}

	response.SuccessWithMessage(c, "更新标记成功", nil)
}
