package protocol

import "encoding/binary"

const (
	// HeaderSize 帧头大小：4 bytes length + 2 bytes msg type
	HeaderSize = 6

	// 消息类型
	MsgTypeHeartbeat  uint16 = 0
	MsgTypeAuth       uint16 = 1
	MsgTypeAuthAck    uint16 = 2
	MsgTypeMessage    uint16 = 10
	MsgTypeMessageAck uint16 = 11
	MsgTypeMarkRead   uint16 = 12
	MsgTypeAddContact uint16 = 13
	MsgTypeEventPush  uint16 = 20

	// MaxFrameSize 单帧体积上限
	MaxFrameSize = 1 << 20
)

// BuildFrame 构建带帧头的数据帧
func BuildFrame(msgType uint16, body []byte) []byte {
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	binary.BigEndian.PutUint16(frame[4:6], msgType)
	copy(frame[HeaderSize:], body)
	return frame
}

// ParseHeader 解析帧头
func ParseHeader(header []byte) (length uint32, msgType uint16) {
	length = binary.BigEndian.Uint32(header[:4])
	msgType = binary.BigEndian.Uint16(header[4:6])
	return length, msgType
}
