package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/application/outbox"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
	"github.com/qrave1/VanishRoom/internal/domain/input"
	"github.com/qrave1/VanishRoom/internal/domain/models"
	"github.com/qrave1/VanishRoom/internal/domain/runtime"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/filestore"
	"github.com/qrave1/VanishRoom/internal/infra/adapters/store"
)

const (
	codeAttempts   = 5
	maxRoomNameLen = 64
)

var (
	roomCodePattern = regexp.MustCompile(`^\d{6}$`)
	slugUnsafe      = regexp.MustCompile(`[^a-z0-9]+`)
)

type RoomUsecase interface {
	Create(ctx context.Context, in *input.CreateRoomInput) (*models.Room, error)
	// Get ищет комнату по коду или slug; удалённые и истёкшие комнаты не находятся
	Get(ctx context.Context, codeOrSlug string) (*models.Room, error)
	PresignUpload(ctx context.Context, roomCode, userID, fileName string) (*filestore.Upload, error)
}

type roomUsecase struct {
	rooms   store.RoomRepository
	files   filestore.Store
	limiter RateLimiter
	effects outbox.Publisher

	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
	newCode    func() (string, error)
}

func NewRoomUsecase(
	rooms store.RoomRepository,
	files filestore.Store,
	limiter RateLimiter,
	effects outbox.Publisher,
	cfg config.LifecycleConfig,
	now func() time.Time,
) RoomUsecase {
	if now == nil {
		now = time.Now
	}

	return &roomUsecase{
		rooms:      rooms,
		files:      files,
		limiter:    limiter,
		effects:    effects,
		defaultTTL: cfg.DefaultRoomTTL,
		maxTTL:     cfg.MaxRoomTTL,
		now:        now,
		newCode:    randomRoomCode,
	}
}

func randomRoomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func slugify(name string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}

	return s
}

func (uc *roomUsecase) ttl(minutes int) (time.Duration, error) {
	if minutes == 0 {
		return uc.defaultTTL, nil
	}

	ttl := time.Duration(minutes) * time.Minute
	if minutes < 1 || ttl > uc.maxTTL {
		return 0, apperr.Invalid("ttlMinutes", fmt.Sprintf("must be between 1 and %d", int(uc.maxTTL.Minutes())))
	}

	return ttl, nil
}

func (uc *roomUsecase) Create(ctx context.Context, in *input.CreateRoomInput) (*models.Room, error) {
	if !runtime.ValidUserID(in.OwnerID) {
		return nil, apperr.Invalid("ownerId", "must be 8-64 letters, digits, '-' or '_'")
	}

	name := strings.TrimSpace(sanitizeText(strings.ReplaceAll(in.Name, "\n", " ")))
	if utf8.RuneCountInString(name) > maxRoomNameLen {
		return nil, apperr.Invalid("name", fmt.Sprintf("must be at most %d characters", maxRoomNameLen))
	}

	ttl, err := uc.ttl(in.TTLMinutes)
	if err != nil {
		return nil, err
	}

	subject := in.Caller
	if subject == "" {
		subject = in.OwnerID
	}
	if !uc.limiter.Allow(ctx, ActionRoom, subject) {
		return nil, apperr.ErrRateLimited
	}

	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate room token: %w", err)
	}

	for attempt := 1; attempt <= codeAttempts; attempt++ {
		code, err := uc.newCode()
		if err != nil {
			return nil, fmt.Errorf("generate room code: %w", err)
		}

		room := models.NewRoom(code, token, in.OwnerID, ttl, uc.now())
		room.Name = name
		room.IsPublic = in.IsPublic
		if s := slugify(name); s != "" {
			room.Slug = s + "-" + code
		}

		err = uc.rooms.Create(ctx, room)
		if errors.Is(err, apperr.ErrDuplicate) {
			log.Debug().Int("attempt", attempt).Str(constant.RoomCode, code).Msg("room code collision")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}

		uc.effects.NotifyInsight(models.InsightRoomCreated, code, map[string]any{"ttlMinutes": int(ttl.Minutes())})

		return room, nil
	}

	log.Error().Int("attempts", codeAttempts).Msg("room code space exhausted")

	return nil, apperr.ErrCodeExhausted
}

func (uc *roomUsecase) Get(ctx context.Context, codeOrSlug string) (*models.Room, error) {
	var (
		room *models.Room
		err  error
	)

	if roomCodePattern.MatchString(codeOrSlug) {
		room, err = uc.rooms.GetByCode(ctx, codeOrSlug)
	} else {
		room, err = uc.rooms.GetBySlug(ctx, codeOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	switch room.State(uc.now()) {
	case models.RoomEnded, models.RoomExpired:
		return nil, apperr.ErrNotFound
	}

	return room, nil
}

func (uc *roomUsecase) PresignUpload(ctx context.Context, roomCode, userID, fileName string) (*filestore.Upload, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, apperr.Invalid("fileName", "is required")
	}

	room, err := uc.Get(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	if !slices.Contains(room.Participants, userID) {
		return nil, apperr.ErrNotInRoom
	}

	if room.IsLocked {
		return nil, apperr.ErrRoomLocked
	}

	upload, err := uc.files.PresignUpload(ctx, room.Code, fileName)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return upload, nil
}
