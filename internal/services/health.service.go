package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
)

// HealthService answers the readiness probe: the API is healthy when both
// its backing stores respond.
type HealthService struct {
	db    *pg.DB
	redis redis.RedisAdapter
}

func NewHealthService(db *pg.DB, redis redis.RedisAdapter) *HealthService {
	return &HealthService{
		db:    db,
		redis: redis,
	}
}

func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.redis.Client().Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "health: redis ping")
	}

	var one int
	if err := s.db.Read(ctx).WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return errors.Wrap(err, "health: database probe")
	}

	return nil
}
