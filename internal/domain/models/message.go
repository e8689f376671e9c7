package models

import (
	"time"
)

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
	// MessageImage - разновидность file, нужна клиенту для одинаковой отрисовки до и после сохранения
	MessageImage MessageType = "image"
)

func (t MessageType) IsFile() bool {
	return t == MessageFile || t == MessageImage
}

func (t MessageType) Valid() bool {
	return t == MessageText || t.IsFile()
}

const (
	SystemUserID   = "system"
	SystemNickname = "System"

	RemovedByOwnerPlaceholder = "This message was removed by the room admin"
)

type FileMeta struct {
	Name     string `json:"name" bson:"name"`
	Size     int64  `json:"size" bson:"size"`
	URL      string `json:"url" bson:"url"`
	MimeType string `json:"mimeType" bson:"mimeType"`
}

type Message struct {
	ID       string `json:"id" bson:"id"`
	RoomCode string `json:"roomCode" bson:"roomCode"`

	UserID   string `json:"userId" bson:"userId"`
	Nickname string `json:"nickname" bson:"nickname"`
	Avatar   string `json:"avatar,omitempty" bson:"avatar,omitempty"`

	Content  string      `json:"content" bson:"content"`
	Type     MessageType `json:"type" bson:"type"`
	FileMeta *FileMeta   `json:"fileMeta,omitempty" bson:"fileMeta,omitempty"`

	// Reactions - emoji -> множество userId
	Reactions map[string][]string `json:"reactions" bson:"reactions"`
	ReplyTo   string              `json:"replyTo,omitempty" bson:"replyTo,omitempty"`

	EditedAt       *time.Time `json:"editedAt,omitempty" bson:"editedAt,omitempty"`
	IsPinned       bool       `json:"isPinned" bson:"isPinned"`
	IsSystem       bool       `json:"isSystem" bson:"isSystem"`
	DeletedByAdmin bool       `json:"deletedByAdmin" bson:"deletedByAdmin"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}

// NewSystemMessage создаёт служебное сообщение комнаты
func NewSystemMessage(id string, room *Room, content string, now time.Time) *Message {
	return &Message{
		ID:        id,
		RoomCode:  room.Code,
		UserID:    SystemUserID,
		Nickname:  SystemNickname,
		Content:   content,
		Type:      MessageText,
		Reactions: map[string][]string{},
		IsSystem:  true,
		CreatedAt: now,
		ExpiresAt: room.ExpiresAt,
	}
}

func (m *Message) HasReaction(emoji, userID string) bool {
	for _, id := range m.Reactions[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}
