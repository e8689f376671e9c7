package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

const suffixAttempts = 15

var suffixPattern = regexp.MustCompile(`#\d+$`)

// NicknameRegistry выдаёт ники, уникальные без учёта регистра в пределах комнаты
type NicknameRegistry interface {
	Resolve(ctx context.Context, roomCode, proposed, excludeUserID string) string
	// ResolveAndClaim разрешает ник и вызывает claim до того, как ник сможет получить кто-то ещё
	ResolveAndClaim(ctx context.Context, roomCode, proposed, userID string, claim func(nickname string)) string
}

type nicknameRegistry struct {
	oracle PresenceOracle
	// live перечитывается под блокировкой комнаты, чтобы увидеть только что занятые ники
	live  PresenceSource
	locks *roomLocks

	suffix func() int
	now    func() time.Time
}

func NewNicknameRegistry(oracle PresenceOracle, live PresenceSource) NicknameRegistry {
	return &nicknameRegistry{
		oracle: oracle,
		live:   live,
		locks:  newRoomLocks(),
		suffix: func() int { return 100 + rand.IntN(900) },
		now:    time.Now,
	}
}

func (r *nicknameRegistry) Resolve(ctx context.Context, roomCode, proposed, excludeUserID string) string {
	return r.pick(proposed, r.oracle.TakenNicknames(ctx, roomCode, excludeUserID))
}

func (r *nicknameRegistry) ResolveAndClaim(ctx context.Context, roomCode, proposed, userID string, claim func(string)) string {
	// медленные источники опрашиваются вне блокировки
	taken := r.oracle.TakenNicknames(ctx, roomCode, userID)

	unlock := r.locks.Lock(roomCode)
	defer unlock()

	if names, err := r.live.Nicknames(ctx, roomCode, userID); err == nil {
		for _, n := range names {
			taken[strings.ToLower(n)] = struct{}{}
		}
	}

	nickname := r.pick(proposed, taken)
	if claim != nil {
		claim(nickname)
	}

	return nickname
}

func (r *nicknameRegistry) pick(proposed string, taken map[string]struct{}) string {
	free := func(name string) bool {
		_, ok := taken[strings.ToLower(name)]
		return !ok
	}

	if free(proposed) {
		return proposed
	}

	base := suffixPattern.ReplaceAllString(proposed, "")
	if base == "" {
		base = proposed
	}

	for i := 0; i < suffixAttempts; i++ {
		candidate := fmt.Sprintf("%s#%d", base, r.suffix())
		if free(candidate) {
			return candidate
		}
	}

	return fmt.Sprintf("%s#%d", base, r.now().UnixNano())
}
