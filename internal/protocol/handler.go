package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/quic-go/webtransport-go"

	"github.com/Heaven664/messenger-backend/internal/connection"
	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/jwt"
	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/pkg/proto"
)

// ConversationAPI 会话状态引擎入口
type ConversationAPI interface {
	Send(ctx context.Context, msg *model.Message) (*model.Message, error)
	MarkRead(ctx context.Context, readerEmail, senderEmail string) error
}

// ContactAPI 好友关系入口
type ContactAPI interface {
	AddContact(ctx context.Context, adderEmail, addedEmail string) (*model.Contact, error)
}

// PresenceAPI 在线状态入口
type PresenceAPI interface {
	OnJoin(ctx context.Context, connID int64, email, deviceID, platform string) error
	OnDisconnect(ctx context.Context, connID int64) error
	OnHeartbeat(ctx context.Context, email string)
}

// EventRouter 下行事件投递入口
type EventRouter interface {
	DeliverMessage(msg *model.Message)
	DeliverRead(readerEmail, senderEmail string)
}

// TokenValidator 访问令牌校验
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*jwt.Claims, error)
}

// Handler 客户端帧协议处理器
type Handler struct {
	connMgr      *connection.Manager
	tokens       TokenValidator
	presence     PresenceAPI
	conversation ConversationAPI
	contacts     ContactAPI
	router       EventRouter
	logger       *slog.Logger
}

// NewHandler 创建协议处理器
func NewHandler(
	connMgr *connection.Manager,
	tokens TokenValidator,
	presence PresenceAPI,
	conversation ConversationAPI,
	contacts ContactAPI,
	router EventRouter,
) *Handler {
	return &Handler{
		connMgr:      connMgr,
		tokens:       tokens,
		presence:     presence,
		conversation: conversation,
		contacts:     contacts,
		router:       router,
		logger:       slog.Default(),
	}
}

var errAuthRequired = errors.New("first frame must be auth")

// HandleFirstStream 处理连接的首个流：必须是认证帧
// 认证失败返回错误，由服务器关闭连接
func (h *Handler) HandleFirstStream(ctx context.Context, conn *connection.Connection, stream *webtransport.Stream) error {
	msgType, body, err := readFrame(stream)
	if err != nil {
		return err
	}
	if msgType != MsgTypeAuth {
		h.sendResponse(stream, MsgTypeAuthAck, &proto.AuthAck{
			Code:    apperrors.CodeUnauthorized,
			Message: apperrors.GetMessage(apperrors.ErrUnauthorized),
		})
		return errAuthRequired
	}
	return h.handleAuth(ctx, conn, stream, body)
}

func (h *Handler) handleAuth(ctx context.Context, conn *connection.Connection, stream *webtransport.Stream, body []byte) error {
	var req proto.AuthRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendResponse(stream, MsgTypeAuthAck, &proto.AuthAck{
			Code:    apperrors.CodeInvalidParams,
			Message: apperrors.GetMessage(apperrors.ErrInvalidParams),
		})
		return err
	}

	claims, err := h.tokens.ValidateAccessToken(req.Token)
	if err != nil {
		h.logger.Debug("Auth rejected", "connId", conn.ID(), "error", err)
		tokenErr := apperrors.ErrTokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			tokenErr = apperrors.ErrTokenExpired
		}
		h.sendResponse(stream, MsgTypeAuthAck, &proto.AuthAck{
			Code:    tokenErr.Code,
			Message: tokenErr.Message,
		})
		return err
	}

	conn.BindSession(&connection.SessionInfo{
		Email:    claims.Email,
		DeviceID: req.DeviceID,
		Platform: req.Platform,
	})
	if err := h.presence.OnJoin(ctx, conn.ID(), claims.Email, req.DeviceID, req.Platform); err != nil {
		h.logger.Error("Failed to process join", "email", claims.Email, "error", err)
		h.sendResponse(stream, MsgTypeAuthAck, &proto.AuthAck{
			Code:    apperrors.GetCode(err),
			Message: apperrors.GetMessage(err),
		})
		return err
	}

	h.logger.Info("Connection authenticated", "connId", conn.ID(), "email", claims.Email, "platform", req.Platform)
	h.sendResponse(stream, MsgTypeAuthAck, &proto.AuthAck{
		Code:  apperrors.CodeSuccess,
		Email: claims.Email,
	})
	return nil
}

// HandleStream 处理已认证连接的后续流
func (h *Handler) HandleStream(ctx context.Context, conn *connection.Connection, stream *webtransport.Stream) {
	defer stream.Close()

	for {
		msgType, body, err := readFrame(stream)
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("Failed to read frame", "connId", conn.ID(), "error", err)
			}
			return
		}

		conn.UpdateActive()
		h.handleFrame(ctx, conn.Email(), stream, msgType, body)
	}
}

// handleFrame 分发单个上行帧
func (h *Handler) handleFrame(ctx context.Context, email string, w io.Writer, msgType uint16, body []byte) {
	switch msgType {
	case MsgTypeHeartbeat:
		h.presence.OnHeartbeat(ctx, email)
		h.writeFrame(w, MsgTypeHeartbeat, nil)
	case MsgTypeAuth:
		h.logger.Warn("Unexpected auth request after authentication", "email", email)
	case MsgTypeMessage:
		h.handleSend(ctx, email, w, body)
	case MsgTypeMarkRead:
		h.handleMarkRead(ctx, email, w, body)
	case MsgTypeAddContact:
		h.handleAddContact(ctx, email, w, body)
	default:
		h.logger.Warn("Unknown message type", "msgType", msgType)
	}
}

func (h *Handler) handleSend(ctx context.Context, email string, w io.Writer, body []byte) {
	var req proto.SendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendAck(w, "", apperrors.ErrInvalidParams)
		return
	}
	if req.ReceiverEmail == "" || req.Body == "" {
		h.sendAck(w, req.ClientMsgID, apperrors.ErrInvalidParams)
		return
	}

	sentTime := time.UnixMilli(req.SentTime)
	if req.SentTime <= 0 {
		sentTime = time.Now()
	}

	msg, err := h.conversation.Send(ctx, &model.Message{
		SenderEmail:   email,
		ReceiverEmail: req.ReceiverEmail,
		Body:          req.Body,
		SentTime:      sentTime,
	})
	if err != nil {
		h.logger.Warn("Send failed", "sender", email, "receiver", req.ReceiverEmail, "error", err)
		h.sendAck(w, req.ClientMsgID, err)
		return
	}

	// 落库成功后才投递；投递失败不影响结果
	h.router.DeliverMessage(msg)

	h.writeFrame(w, MsgTypeMessageAck, mustMarshal(&proto.MessageAck{
		Code:        apperrors.CodeSuccess,
		ClientMsgID: req.ClientMsgID,
		ServerMsgID: msg.ID,
		Timestamp:   time.Now().UnixMilli(),
	}))
}

func (h *Handler) handleMarkRead(ctx context.Context, email string, w io.Writer, body []byte) {
	var req proto.MarkReadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendAck(w, "", apperrors.ErrInvalidParams)
		return
	}
	if req.SenderEmail == "" {
		h.sendAck(w, "", apperrors.ErrInvalidParams)
		return
	}

	if err := h.conversation.MarkRead(ctx, email, req.SenderEmail); err != nil {
		h.logger.Warn("MarkRead failed", "reader", email, "sender", req.SenderEmail, "error", err)
		h.sendAck(w, "", err)
		return
	}

	h.router.DeliverRead(email, req.SenderEmail)
	h.sendAck(w, "", nil)
}

func (h *Handler) handleAddContact(ctx context.Context, email string, w io.Writer, body []byte) {
	var req proto.AddContactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.sendAck(w, "", apperrors.ErrInvalidParams)
		return
	}
	if req.FriendEmail == "" {
		h.sendAck(w, "", apperrors.ErrInvalidParams)
		return
	}

	if _, err := h.contacts.AddContact(ctx, email, req.FriendEmail); err != nil {
		h.logger.Warn("AddContact failed", "adder", email, "added", req.FriendEmail, "error", err)
		h.sendAck(w, "", err)
		return
	}
	h.sendAck(w, "", nil)
}

// DeliverEvent 把下行事件投递给目标身份的所有连接（fanout.EventHandler 实现）
func (h *Handler) DeliverEvent(event *proto.DownstreamEvent) {
	conns := h.connMgr.GetByEmail(event.To)
	if len(conns) == 0 {
		h.logger.Debug("Event dropped, user offline", "event", event.Payload.Name(), "to", event.To)
		return
	}

	frame := BuildFrame(MsgTypeEventPush, mustMarshal(&event.Payload))
	for _, conn := range conns {
		if err := conn.Send(frame); err != nil {
			h.logger.Debug("Failed to push event", "connId", conn.ID(), "error", err)
		}
	}
	h.logger.Debug("Event delivered", "event", event.Payload.Name(), "to", event.To, "connCount", len(conns))
}

// sendAck 发送操作确认，err 为 nil 时是成功确认
func (h *Handler) sendAck(w io.Writer, clientMsgID string, err error) {
	ack := &proto.MessageAck{
		Code:        apperrors.CodeSuccess,
		ClientMsgID: clientMsgID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err != nil {
		ack.Code = apperrors.GetCode(err)
		ack.Message = apperrors.GetMessage(err)
	}
	h.writeFrame(w, MsgTypeMessageAck, mustMarshal(ack))
}

func (h *Handler) sendResponse(w io.Writer, msgType uint16, payload any) {
	h.writeFrame(w, msgType, mustMarshal(payload))
}

func (h *Handler) writeFrame(w io.Writer, msgType uint16, body []byte) {
	if _, err := w.Write(BuildFrame(msgType, body)); err != nil {
		h.logger.Debug("Failed to write frame", "error", err)
	}
}

func readFrame(r io.Reader) (uint16, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	length, msgType := ParseHeader(header)
	if length > MaxFrameSize {
		return 0, nil, errors.New("frame too large")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return msgType, body, nil
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
