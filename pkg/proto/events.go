package proto

// ============== 下行事件 (Core -> Gateway -> Client) ==============

// DownstreamEvent 下行事件封装
// To 是目标用户身份（邮箱），网关投递给当前绑定到该身份的所有连接
type DownstreamEvent struct {
	To      string       `json:"to"`
	Payload EventPayload `json:"payload"`
}

// EventPayload 事件载荷，每次恰好一个变体非空
type EventPayload struct {
	PrivateMessage *PrivateMessage `json:"privateMessage,omitempty"`
	MessageRead    *MessageRead    `json:"messageRead,omitempty"`
	FriendOnline   *FriendOnline   `json:"friendOnline,omitempty"`
	FriendOffline  *FriendOffline  `json:"friendOffline,omitempty"`
	NewContact     *NewContact     `json:"newContact,omitempty"`
}

// Name 返回事件名（用于日志）
func (p *EventPayload) Name() string {
	switch {
	case p.PrivateMessage != nil:
		return "private-message"
	case p.MessageRead != nil:
		return "message-read"
	case p.FriendOnline != nil:
		return "friend-online"
	case p.FriendOffline != nil:
		return "friend-offline"
	case p.NewContact != nil:
		return "new-contact"
	}
	return "unknown"
}

// PrivateMessage 私聊消息事件
type PrivateMessage struct {
	ServerMsgID     int64  `json:"serverMsgId"`
	SenderEmail     string `json:"senderEmail"`
	ReceiverEmail   string `json:"receiverEmail"`
	Body            string `json:"body"`
	SenderAvatarRef string `json:"senderAvatarRef,omitempty"`
	SentTime        int64  `json:"sentTime"` // 毫秒时间戳
	Viewed          bool   `json:"viewed"`
}

// MessageRead 已读回执事件
type MessageRead struct {
	ReaderEmail string `json:"readerEmail"`
}

// FriendOnline 好友上线事件
type FriendOnline struct {
	Email string `json:"email"`
}

// FriendOffline 好友下线事件
type FriendOffline struct {
	Email        string `json:"email"`
	LastSeenTime int64  `json:"lastSeenTime"` // 毫秒时间戳
}

// NewContact 新好友事件（通知被添加方）
type NewContact struct {
	ContactID  int64  `json:"contactId"`
	AdderEmail string `json:"adderEmail"`
	AdderName  string `json:"adderName"`
	AdderImage string `json:"adderImage,omitempty"`
}
