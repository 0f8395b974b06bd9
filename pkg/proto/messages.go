package proto

// ============== 上行消息 (Client -> Gateway) ==============

// AuthRequest 认证请求（首帧）
type AuthRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform"`
}

// AuthAck 认证结果
type AuthAck struct {
	Code    int    `json:"code"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

// SendMessageRequest 发送消息请求
// 发送者身份取自连接绑定，不信任客户端填写
type SendMessageRequest struct {
	ClientMsgID   string `json:"clientMsgId"`
	ReceiverEmail string `json:"receiverEmail"`
	Body          string `json:"body"`
	SentTime      int64  `json:"sentTime"` // 毫秒时间戳
}

// MarkReadRequest 标记会话已读请求
// 清零的是读取方自己的会话行
type MarkReadRequest struct {
	SenderEmail string `json:"senderEmail"`
}

// AddContactRequest 添加好友请求
type AddContactRequest struct {
	FriendEmail string `json:"friendEmail"`
}

// MessageAck 操作确认
type MessageAck struct {
	Code        int    `json:"code"`
	Message     string `json:"message,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
	ServerMsgID int64  `json:"serverMsgId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}
