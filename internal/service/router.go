package service

import (
	"log/slog"
	"time"

	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/pkg/proto"
)

// Publisher 下行事件发布接口
type Publisher interface {
	PublishToUser(event *proto.DownstreamEvent) error
}

// RouterService 下行事件路由
// 持久化成功后才走到这里；投递是尽力而为，失败只记日志不影响调用方结果
type RouterService struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewRouterService 创建路由服务
func NewRouterService(publisher Publisher) *RouterService {
	return &RouterService{
		publisher: publisher,
		logger:    slog.Default(),
	}
}

// DeliverMessage 投递私聊消息事件
// 发给接收方和发送方两个身份频道：发送方的其他在线端也要看到自己发出的消息
func (s *RouterService) DeliverMessage(msg *model.Message) {
	payload := proto.EventPayload{
		PrivateMessage: &proto.PrivateMessage{
			ServerMsgID:     msg.ID,
			SenderEmail:     msg.SenderEmail,
			ReceiverEmail:   msg.ReceiverEmail,
			Body:            msg.Body,
			SenderAvatarRef: msg.SenderAvatarRef,
			SentTime:        msg.SentTime.UnixMilli(),
			Viewed:          msg.Viewed,
		},
	}
	s.publish(msg.ReceiverEmail, payload)
	s.publish(msg.SenderEmail, payload)
}

// DeliverRead 投递已读回执事件给原消息的发送方
func (s *RouterService) DeliverRead(readerEmail, senderEmail string) {
	s.publish(senderEmail, proto.EventPayload{
		MessageRead: &proto.MessageRead{ReaderEmail: readerEmail},
	})
}

// DeliverFriendOnline 投递好友上线事件给所有好友
func (s *RouterService) DeliverFriendOnline(email string, contactEmails []string) {
	payload := proto.EventPayload{
		FriendOnline: &proto.FriendOnline{Email: email},
	}
	for _, to := range contactEmails {
		s.publish(to, payload)
	}
}

// DeliverFriendOffline 投递好友下线事件给所有好友
func (s *RouterService) DeliverFriendOffline(email string, lastSeen time.Time, contactEmails []string) {
	payload := proto.EventPayload{
		FriendOffline: &proto.FriendOffline{
			Email:        email,
			LastSeenTime: lastSeen.UnixMilli(),
		},
	}
	for _, to := range contactEmails {
		s.publish(to, payload)
	}
}

// DeliverNewContact 投递新好友事件给被添加方
func (s *RouterService) DeliverNewContact(contact *model.Contact, adderEmail string) {
	adder := contact.MemberA
	if contact.MemberB.Email == adderEmail {
		adder = contact.MemberB
	}
	added := contact.Other(adderEmail)
	s.publish(added.Email, proto.EventPayload{
		NewContact: &proto.NewContact{
			ContactID:  contact.ID,
			AdderEmail: adder.Email,
			AdderName:  adder.Name,
			AdderImage: adder.AvatarRef,
		},
	})
}

func (s *RouterService) publish(to string, payload proto.EventPayload) {
	event := &proto.DownstreamEvent{To: to, Payload: payload}
	if err := s.publisher.PublishToUser(event); err != nil {
		s.logger.Warn("Failed to deliver event", "event", payload.Name(), "to", to, "error", err)
	}
}
