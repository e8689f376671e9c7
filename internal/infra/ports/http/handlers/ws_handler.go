package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/events"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/memory"
	"github.com/qrave1/VanishRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/VanishRoom/internal/usecase"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	// data URL вложения идут прямо в сообщении
	maxFrameSize = 16 << 20
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	registry         memory.ConnectionRegistry
	presenceUsecase  usecase.PresenceUsecase
	messageUsecase   usecase.MessageUsecase
	lifecycleUsecase usecase.LifecycleUsecase

	typingTimeout time.Duration
}

func NewWebSocketHandler(
	cfg *config.Config,
	registry memory.ConnectionRegistry,
	presenceUsecase usecase.PresenceUsecase,
	messageUsecase usecase.MessageUsecase,
	lifecycleUsecase usecase.LifecycleUsecase,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				return r.Header.Get("Origin") == cfg.Domain
			},
		},
		registry:         registry,
		presenceUsecase:  presenceUsecase,
		messageUsecase:   messageUsecase,
		lifecycleUsecase: lifecycleUsecase,
		typingTimeout:    cfg.Lifecycle.TypingTimeout,
	}
}

// typingTimer сбрасывает индикатор набора, если клиент замолчал
type typingTimer struct {
	mu    sync.Mutex
	timer *time.Timer
}

func (t *typingTimer) reset(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, fn)
}

func (t *typingTimer) stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil {
		return false
	}

	active := t.timer.Stop()
	t.timer = nil

	return active
}

func (h *WebSocketHandler) Handle(c echo.Context) error {
	userID := c.QueryParam("userId")
	if !runtime.ValidUserID(userID) {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "userId: must be 8-64 letters, digits, '-' or '_'"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	connID := uuid.NewString()
	h.registry.Add(connID, userID, ws)

	typing := &typingTimer{}

	defer func() {
		typing.stop()

		// обрыв соединения убирает присутствие, но не блокирует комнату владельца
		if err := h.presenceUsecase.Leave(context.WithoutCancel(ctx), connID, false); err != nil {
			log.Warn().Err(err).Str(constant.ConnID, connID).Msg("leave on disconnect")
		}

		h.registry.Remove(connID)
		_ = ws.Close()
	}()

	ws.SetReadLimit(maxFrameSize)

	if err = ws.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.keepAlive(ctx, ws, connID)

	log.Debug().Str(constant.ConnID, connID).Str(constant.UserID, userID).Msg("websocket connected")

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			h.handleWebsocketError(connID, err)
			return nil
		}

		msg := new(events.Message)
		if err = json.Unmarshal(raw, msg); err != nil {
			log.Debug().Err(err).Str(constant.ConnID, connID).Msg("unmarshal websocket message")
			h.ack(connID, "", "", "", apperr.Invalid("message", "malformed json"))
			continue
		}

		h.handleMessage(ctx, connID, msg, typing)
	}
}

// keepAlive шлёт ping; WriteControl безопасен параллельно с WriteJSON
func (h *WebSocketHandler) keepAlive(ctx context.Context, ws *websocket.Conn, connID string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug().Err(err).Str(constant.ConnID, connID).Msg("ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func decode[T any](data json.RawMessage) (*T, error) {
	v := new(T)
	if len(data) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, apperr.Invalid("data", "malformed payload")
	}

	return v, nil
}

func (h *WebSocketHandler) handleMessage(
	ctx context.Context,
	connID string,
	msg *events.Message,
	typing *typingTimer,
) {
	var (
		messageID string
		nickname  string
		err       error
	)

	switch msg.Type {
	case events.InJoin:
		var in *input.JoinInput
		if in, err = decode[input.JoinInput](msg.Data); err != nil {
			break
		}

		var joined *events.JoinedEvent
		if joined, err = h.presenceUsecase.Join(ctx, connID, in); err == nil {
			nickname = joined.Nickname
			h.registry.Write(connID, events.New(events.OutJoined, joined))
		}

	case events.InLeave:
		h.stopTyping(ctx, connID, typing)

		if err = h.presenceUsecase.Leave(ctx, connID, true); err == nil {
			h.registry.Write(connID, events.New(events.OutLeft, nil))
		}

	case events.InSendMessage:
		var in *input.SendMessageInput
		if in, err = decode[input.SendMessageInput](msg.Data); err != nil {
			break
		}

		h.stopTyping(ctx, connID, typing)

		var stored *models.Message
		if stored, err = h.messageUsecase.Send(ctx, connID, in); err == nil {
			messageID = stored.ID
		}

	case events.InEditMessage:
		var in *input.EditMessageInput
		if in, err = decode[input.EditMessageInput](msg.Data); err != nil {
			break
		}
		if _, err = h.messageUsecase.Edit(ctx, connID, in); err == nil {
			messageID = in.MessageID
		}

	case events.InDeleteMessage:
		var in *input.MessageRefInput
		if in, err = decode[input.MessageRefInput](msg.Data); err != nil {
			break
		}
		if err = h.messageUsecase.Delete(ctx, connID, in); err == nil {
			messageID = in.MessageID
		}

	case events.InPinMessage, events.InUnpinMessage:
		var in *input.MessageRefInput
		if in, err = decode[input.MessageRefInput](msg.Data); err != nil {
			break
		}

		if msg.Type == events.InPinMessage {
			err = h.messageUsecase.Pin(ctx, connID, in)
		} else {
			err = h.messageUsecase.Unpin(ctx, connID, in)
		}
		if err == nil {
			messageID = in.MessageID
		}

	case events.InReact:
		var in *input.ReactInput
		if in, err = decode[input.ReactInput](msg.Data); err != nil {
			break
		}
		if _, err = h.messageUsecase.React(ctx, connID, in); err == nil {
			messageID = in.MessageID
		}

	case events.InTyping:
		var in *input.TypingInput
		if in, err = decode[input.TypingInput](msg.Data); err != nil {
			break
		}

		if !in.IsTyping {
			h.stopTyping(ctx, connID, typing)
			return
		}

		if err = h.presenceUsecase.Typing(ctx, connID, true); err == nil {
			typing.reset(h.typingTimeout, func() {
				_ = h.presenceUsecase.Typing(context.WithoutCancel(ctx), connID, false)
			})
		}

		// набор текста не подтверждается, чтобы не шуметь
		if err == nil {
			return
		}

	case events.InUpdateNickname:
		var in *input.UpdateNicknameInput
		if in, err = decode[input.UpdateNicknameInput](msg.Data); err != nil {
			break
		}
		nickname, err = h.presenceUsecase.UpdateNickname(ctx, connID, in)

	case events.InDestroyRoom:
		var in *input.DestroyRoomInput
		if in, err = decode[input.DestroyRoomInput](msg.Data); err != nil {
			break
		}

		if err = h.destroyRoom(ctx, connID, in); err == nil {
			// соединение уже закрыто вместе с комнатой, подтверждать некому
			return
		}

	case events.InPing:
		h.registry.Write(connID, events.New(events.OutPong, nil))
		return

	default:
		err = apperr.Invalid("type", "unknown event "+msg.Type)
	}

	if err != nil && !apperr.IsClientError(err) {
		log.Error().
			Err(err).
			Str(constant.ConnID, connID).
			Str(constant.EventType, msg.Type).
			Msg("handle websocket event")
	}

	h.ack(connID, msg.RequestID, messageID, nickname, err)
}

// destroyRoom требует, чтобы заявленный ownerId совпадал с userId самого соединения
func (h *WebSocketHandler) destroyRoom(ctx context.Context, connID string, in *input.DestroyRoomInput) error {
	sess, ok := h.registry.Get(connID)
	if !ok {
		return apperr.ErrNotInRoom
	}

	if in.OwnerID != "" && in.OwnerID != sess.UserID {
		log.Warn().
			Str(constant.RoomCode, in.RoomCode).
			Str(constant.ClaimedID, in.OwnerID).
			Str(constant.UserID, sess.UserID).
			Msg("destroy rejected: claimed owner differs from connection")

		return apperr.ErrForbidden
	}

	_, err := h.lifecycleUsecase.End(ctx, in.RoomCode, sess.UserID)

	return err
}

func (h *WebSocketHandler) stopTyping(ctx context.Context, connID string, typing *typingTimer) {
	if typing.stop() {
		_ = h.presenceUsecase.Typing(ctx, connID, false)
	}
}

func (h *WebSocketHandler) ack(connID, requestID, messageID, nickname string, err error) {
	ack := events.AckEvent{
		RequestID: requestID,
		OK:        err == nil,
		MessageID: messageID,
		Nickname:  nickname,
	}
	if err != nil {
		ack.Error = apperr.Reason(err)
	}

	h.registry.Write(connID, events.New(events.OutAck, ack))
}

func (h *WebSocketHandler) handleWebsocketError(connID string, err error) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			log.Debug().Str(constant.ConnID, connID).Msg("websocket closed by client")
		default:
			log.Warn().
				Err(err).
				Str(constant.ConnID, connID).
				Int("code", closeErr.Code).
				Msg("websocket close error")
		}

		return
	}

	log.Debug().Err(err).Str(constant.ConnID, connID).Msg("websocket read error")
}
