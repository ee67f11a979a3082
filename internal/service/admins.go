package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kavik/groupwarden-go/internal/constants"
	"github.com/kavik/groupwarden-go/internal/platform"
	"github.com/kavik/groupwarden-go/internal/service/cache"
)

// AdminRosterClient is the slice of the platform client the admin
// service reads through.
type AdminRosterClient interface {
	GetChatAdministrators(ctx context.Context, chatID int64) ([]platform.ChatMember, error)
}

// AdminService answers "is this user an admin of this chat". Rosters
// are cached for a few minutes so moderation commands do not hit the
// platform API on every invocation.
type AdminService struct {
	client AdminRosterClient
	cache  *cache.CacheService
	logger *zap.Logger
}

func NewAdminService(client AdminRosterClient, cacheSvc *cache.CacheService, logger *zap.Logger) *AdminService {
	return &AdminService{
		client: client,
		cache:  cacheSvc,
		logger: logger,
	}
}

func (s *AdminService) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	roster, err := s.roster(ctx, chatID)
	if err != nil {
		return false, err
	}
	for _, id := range roster {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *AdminService) roster(ctx context.Context, chatID int64) ([]int64, error) {
	cacheKey := fmt.Sprintf("admins:%d", chatID)

	if s.cache != nil {
		var cached []int64
		if exists, err := s.cache.Exists(ctx, cacheKey); err == nil && exists {
			if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
				return cached, nil
			}
		}
	}

	members, err := s.client.GetChatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}

	roster := make([]int64, 0, len(members))
	for _, m := range members {
		if m.IsAdmin() {
			roster = append(roster, m.User.ID)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, roster, constants.CacheTTL.AdminList); err != nil {
			s.logger.Warn("Admin roster cache write failed",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
		}
	}

	return roster, nil
}

// Invalidate drops a chat's cached roster, called after promote or
// demote actions change it.
func (s *AdminService) Invalidate(ctx context.Context, chatID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, fmt.Sprintf("admins:%d", chatID)); err != nil {
		s.logger.Warn("Admin roster invalidation failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
