package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError // 默认返回服务器错误
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 认证相关 10000-10999
	CodeTokenInvalid = 10001
	CodeTokenExpired = 10002
	CodeUnauthorized = 10003

	// 用户相关 11000-11999
	CodeUserNotFound  = 11001
	CodeEmailExists   = 11002
	CodeInvalidParams = 11003

	// 会话/消息相关 12000-12999
	CodeChatNotFound      = 12001
	CodeMessageNotFound   = 12002
	CodeCannotMessageSelf = 12003

	// 联系人相关 13000-13999
	CodeContactNotFound = 13001
	CodeAlreadyFriends  = 13002
	CodeCannotAddSelf   = 13003

	// 系统错误 50000-50999
	CodeServerError       = 50001
	CodeDBError           = 50002
	CodeTransactionFailed = 50003
)

// ============== 预定义错误 ==============

// 认证相关
var (
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token 已过期")
	ErrUnauthorized = NewError(CodeUnauthorized, "无权操作该用户的数据")
)

// 用户相关
var (
	ErrUserNotFound  = NewError(CodeUserNotFound, "用户不存在")
	ErrEmailExists   = NewError(CodeEmailExists, "邮箱已被注册")
	ErrInvalidParams = NewError(CodeInvalidParams, "参数校验失败")
)

// 会话/消息相关
var (
	ErrChatNotFound      = NewError(CodeChatNotFound, "会话不存在")
	ErrMessageNotFound   = NewError(CodeMessageNotFound, "消息不存在")
	ErrCannotMessageSelf = NewError(CodeCannotMessageSelf, "不能给自己发送消息")
)

// 联系人相关
var (
	ErrContactNotFound = NewError(CodeContactNotFound, "好友关系不存在")
	ErrAlreadyFriends  = NewError(CodeAlreadyFriends, "已经是好友关系")
	ErrCannotAddSelf   = NewError(CodeCannotAddSelf, "不能添加自己为好友")
)

// 系统相关
var (
	ErrServerError       = NewError(CodeServerError, "服务器内部错误")
	ErrDBError           = NewError(CodeDBError, "数据库错误")
	ErrTransactionFailed = NewError(CodeTransactionFailed, "事务提交失败，请重试")
)
