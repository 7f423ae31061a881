package handler

import (
	"strconv"

	"github.com/murilobezs/empowerup-sub002/internal/service"
	"github.com/murilobezs/empowerup-sub002/pkg/jwt"
	"github.com/murilobezs/empowerup-sub002/pkg/response"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息处理器
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(s *service.MessageService) *MessageHandler {
	return &MessageHandler{service: s}
}

// Send 发送消息
func (h *MessageHandler) Send(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	// 绑定请求参数
	type req struct {
		Body      string                 `json:"body" binding:"required"`
		Kind      string                 `json:"kind"`
		Metadata  map[string]interface{} `json:"metadata"`
		ReplyToID *uint                  `json:"reply_to_id"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	message, err := h.service.Send(c.Request.Context(), conversationID, userID, r.Body, r.Kind, r.Metadata, r.ReplyToID)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "消息发送失败")
		return
	}

	response.SuccessWithMessage(c, "消息发送成功", message)
}

// List 获取会话消息（分页，按发送顺序）
func (h *MessageHandler) List(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	// 分页参数由服务层兜底
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	messages, total, err := h.service.ListPage(c.Request.Context(), conversationID, userID, page, pageSize)
	if err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "获取消息历史失败")
		return
	}

	response.SuccessWithMessage(c, "获取消息历史成功", gin.H{
		"messages": messages,
		"total":    total,
		"page":     page,
	})
}

// MarkSeen 标记会话为已查看
func (h *MessageHandler) MarkSeen(c *gin.Context) {
	userID := jwt.GetUserID(c)

	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}

	if err := h.service.MarkSeen(c.Request.Context(), conversationID, userID); err != nil {
		if response.IsDomainError(err) {
			response.DomainError(c, err)
			return
		}
		response.InternalError(c, "标记已读失败")
		return
	}

	response.SuccessWithMessage(c, "会话已标记为已读", nil)
}

// pathID 解析路径里的数字ID
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, name+" 无效")
		return 0, false
	}
	return uint(id), true
}
