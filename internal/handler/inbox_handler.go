package handler

import (
	"github.com/murilobezs/empowerup-sub002/internal/service"
	"github.com/murilobezs/empowerup-sub002/pkg/jwt"
	"github.com/murilobezs/empowerup-sub002/pkg/response"

	"github.com/gin-gonic/gin"
)

// InboxHandler 收件箱处理器
type InboxHandler struct {
	service *service.InboxService
}

// NewInboxHandler 创建InboxHandler实例
func NewInboxHandler(s *service.InboxService) *InboxHandler {
	return &InboxHandler{service: s}
}

// Badge 获取全局未读角标
func (h *InboxHandler) Badge(c *gin.Context) {
	userID := jwt.GetUserID(c)

	badge, err := h.service.UnreadSummary(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c, "获取未读角标失败")
		return
	}

	response.SuccessWithMessage(c, "获取未读角标成功", badge)
}
