package response

import (
	"errors"
	"net/http"

	"github.com/murilobezs/empowerup-sub002/internal/apperr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`            // 状态码：0表示成功，其他表示错误
	Message string      `json:"message"`         // 响应消息
	Data    interface{} `json:"data,omitempty"`  // 响应数据
	Error   string      `json:"error,omitempty"` // 错误详情（仅在开发环境显示）
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Error(c, 400, message)
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, 401, message)
}

// Forbidden 403错误
func Forbidden(c *gin.Context, message string) {
	Error(c, 403, message)
}

// NotFound 404错误
func NotFound(c *gin.Context, message string) {
	Error(c, 404, message)
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	Error(c, 500, message)
}

// domainError 业务错误到稳定错误码与文案的映射
type domainError struct {
	code    int
	kind    string
	message string
}

var domainErrors = []struct {
	err  error
	resp domainError
}{
	{apperr.ErrConversationNotFound, domainError{404, "conversation_not_found", "会话不存在"}},
	{apperr.ErrNotAParticipant, domainError{403, "not_a_participant", "不是该会话的成员"}},
	{apperr.ErrOwnerCannotLeave, domainError{409, "owner_cannot_leave", "群主需先转让群组才能退出"}},
	{apperr.ErrReplyTargetInvalid, domainError{400, "reply_target_invalid", "回复的消息不存在或不在该会话中"}},
	{apperr.ErrInvalidContent, domainError{400, "invalid_content", "消息内容为空或超出长度限制"}},
	{apperr.ErrSelfConversation, domainError{400, "self_conversation", "不能和自己发起私聊"}},
	{apperr.ErrPermissionDenied, domainError{403, "permission_denied", "没有执行该操作的权限"}},
}

// DomainError 按业务错误种类输出稳定响应
// 未识别的错误视为意外存储故障，由调用方先记日志再走500
func DomainError(c *gin.Context, err error) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			c.JSON(http.StatusOK, Response{
				Code:    d.resp.code,
				Message: d.resp.message,
				Error:   d.resp.kind,
			})
			return
		}
	}
	InternalError(c, "服务器内部错误")
}

// IsDomainError 判断是否已定义的业务错误
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return true
		}
	}
	return false
}
