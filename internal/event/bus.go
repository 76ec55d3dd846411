package event

import (
	"context"
	"encoding/json"
	"sync"

	redis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/google/wire"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(NewBus)

const redisChannel = "antidetect:automation-events"

type Handler func(ctx context.Context, ev Event)

// Bus 进程内事件总线。订阅方按类型注册 handler，Publish 同步逐个调用；
// 注入 Redis 客户端时每个事件同时镜像到 pub/sub 频道，nil 则仅进程内分发。
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	rdb      *redis.Client
	logger   *zap.Logger
}

func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		rdb:      rdb,
		logger:   logger,
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish 分发事件。handler 内部的失败自行记录，不会中断其余 handler。
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	b.mu.RLock()
	handlers := b.handlers[ev.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}

	if b.rdb != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			b.logger.Error("failed to marshal event for redis mirror",
				zap.String("event_id", ev.ID),
				zap.Error(err))
			return
		}
		if err := b.rdb.Publish(ctx, redisChannel, payload).Err(); err != nil {
			b.logger.Error("failed to mirror event to redis",
				zap.String("event_id", ev.ID),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err))
		}
	}
}
