package apperr

import "errors"

// 稳定的业务错误种类
// 所有层用 errors.Is 匹配，handler 经 response.DomainError 映射为统一响应
// 除下列错误外的存储故障按意外错误处理（记日志并返回500）

var (
	// ErrConversationNotFound 会话不存在
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotAParticipant 操作者不是会话的活跃参与者
	ErrNotAParticipant = errors.New("not a participant of this conversation")
	// ErrOwnerCannotLeave 群的唯一 owner 不能直接退出
	ErrOwnerCannotLeave = errors.New("sole owner cannot leave the group")
	// ErrReplyTargetInvalid 回复目标不存在或不在同一会话
	ErrReplyTargetInvalid = errors.New("reply target invalid")
	// ErrInvalidContent 消息内容为空或超长
	ErrInvalidContent = errors.New("invalid message content")
	// ErrSelfConversation 不能和自己建立私聊
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	// ErrPermissionDenied 没有执行该操作的权限
	ErrPermissionDenied = errors.New("permission denied")
)
