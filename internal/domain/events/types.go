package events

import (
	"encoding/json"
	"time"
)

// Message - общее событие
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Outbound - событие, отправляемое клиенту
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func New(eventType string, data any) Outbound {
	return Outbound{Type: eventType, Data: data}
}

// Входящие события
const (
	InJoin           = "join"
	InLeave          = "leave"
	InSendMessage    = "sendMessage"
	InEditMessage    = "editMessage"
	InDeleteMessage  = "deleteMessage"
	InPinMessage     = "pinMessage"
	InUnpinMessage   = "unpinMessage"
	InReact          = "react"
	InTyping         = "typing"
	InUpdateNickname = "updateNickname"
	InDestroyRoom    = "destroyRoom"
	InPing           = "ping"
)

// Исходящие события
const (
	OutAck             = "ack"
	OutJoined          = "joined"
	OutLeft            = "left"
	OutPong            = "pong"
	OutRoomLocked      = "room_locked"
	OutRoomUnlocked    = "room_unlocked"
	OutRoomVanished    = "room_vanished"
	OutRoomDestroyed   = "room_destroyed"
	OutNewMessage      = "newMessage"
	OutMessageEdited   = "messageEdited"
	OutMessageDeleted  = "messageDeleted"
	OutMessagePinned   = "messagePinned"
	OutMessageUnpinned = "messageUnpinned"
	OutUserJoined      = "userJoined"
	OutUserLeft        = "userLeft"
	OutUserCount       = "userCount"
	OutReactionAdded   = "reactionAdded"
	OutReactionRemoved = "reactionRemoved"
	OutTyping          = "typing"
	OutNicknameChanged = "nicknameChanged"
)

type AckEvent struct {
	RequestID string `json:"requestId,omitempty"`
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Error     string `json:"error,omitempty"`
}

type JoinedEvent struct {
	RoomCode  string    `json:"roomCode"`
	Nickname  string    `json:"nickname"`
	IsOwner   bool      `json:"isOwner"`
	IsLocked  bool      `json:"isLocked"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserCount int       `json:"userCount"`
}

type RoomLockedEvent struct {
	LockedAt time.Time `json:"lockedAt"`
}

type RoomVanishedEvent struct {
	Reason     string `json:"reason"`
	VanishedBy string `json:"vanishedBy"`
}

type RoomDestroyedEvent struct {
	Reason string `json:"reason"`
}

type MessageDeletedEvent struct {
	MessageID      string `json:"messageId"`
	DeletedByAdmin bool   `json:"deletedByAdmin"`
}

type MessagePinEvent struct {
	MessageID string `json:"messageId"`
}

type UserPresenceEvent struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

type UserCountEvent struct {
	Count int `json:"count"`
}

type ReactionEvent struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

type TypingEvent struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
}

type NicknameChangedEvent struct {
	UserID      string `json:"userId"`
	OldNickname string `json:"oldNickname"`
	Nickname    string `json:"nickname"`
	Avatar      string `json:"avatar,omitempty"`
}
