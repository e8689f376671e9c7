package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/kv"
)

var pairingCodePattern = regexp.MustCompile(`^\d{6}$`)

// Pairing - сессия, передаваемая на второе устройство
type Pairing struct {
	Code      string    `json:"code,omitempty"`
	RoomCode  string    `json:"roomCode"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// PairingUsecase выдаёт одноразовые коды. Без KV недоступен
type PairingUsecase interface {
	Issue(ctx context.Context, roomCode, userID string) (*Pairing, error)
	Redeem(ctx context.Context, code string) (*Pairing, error)
}

type pairingUsecase struct {
	coord kv.Store
	rooms RoomUsecase
	ttl   time.Duration
	now   func() time.Time
}

func NewPairingUsecase(coord kv.Store, rooms RoomUsecase, ttl time.Duration, now func() time.Time) PairingUsecase {
	if now == nil {
		now = time.Now
	}

	return &pairingUsecase{coord: coord, rooms: rooms, ttl: ttl, now: now}
}

func (uc *pairingUsecase) Issue(ctx context.Context, roomCode, userID string) (*Pairing, error) {
	if !runtime.ValidUserID(userID) {
		return nil, apperr.Invalid("userId", "must be 8-64 letters, digits, '-' or '_'")
	}

	if _, err := uc.rooms.Get(ctx, roomCode); err != nil {
		return nil, err
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return nil, fmt.Errorf("generate pairing code: %w", err)
	}

	p := &Pairing{
		Code:      fmt.Sprintf("%06d", n.Int64()),
		RoomCode:  roomCode,
		UserID:    userID,
		ExpiresAt: uc.now().Add(uc.ttl),
	}

	payload, err := json.Marshal(Pairing{RoomCode: p.RoomCode, UserID: p.UserID})
	if err != nil {
		return nil, fmt.Errorf("marshal pairing: %w", err)
	}

	if err = uc.coord.SetEx(ctx, kv.PairingKey(p.Code), string(payload), uc.ttl); err != nil {
		return nil, fmt.Errorf("store pairing code: %w: %w", apperr.ErrUnavailable, err)
	}

	return p, nil
}

func (uc *pairingUsecase) Redeem(ctx context.Context, code string) (*Pairing, error) {
	if !pairingCodePattern.MatchString(code) {
		return nil, apperr.Invalid("code", "must be 6 digits")
	}

	raw, err := uc.coord.GetDel(ctx, kv.PairingKey(code))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redeem pairing code: %w: %w", apperr.ErrUnavailable, err)
	}

	var p Pairing
	if err = json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pairing: %w", err)
	}

	return &p, nil
}
