package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sudooom.arena/internal/config"
	"sudooom.arena/internal/model"
)

const defaultTTL = 2 * time.Minute

// Location 连接所在的房间和座位
type Location struct {
	ConnID  model.ConnID
	RoomID  model.RoomID
	Slot    model.Slot
	NodeID  string
	BoundAt time.Time
}

// Presence Redis 在线镜像，实现 room.Presence
// Key: arena:conn:{connId} -> Hash{roomId, slot, node, boundAt}
// Key: arena:room:conns:{roomId} -> Set{connId}
type Presence struct {
	client *redis.Client
	nodeID string
	ttl    time.Duration
	logger *slog.Logger
}

// NewClient 创建 Redis 客户端
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
}

// NewPresence 创建在线镜像
func NewPresence(client *redis.Client, nodeID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Presence{
		client: client,
		nodeID: nodeID,
		ttl:    ttl,
		logger: slog.Default().With("component", "Presence"),
	}
}

// BuildConnKey arena:conn:{connId}
func BuildConnKey(conn model.ConnID) string {
	return "arena:conn:" + string(conn)
}

// BuildRoomConnsKey arena:room:conns:{roomId}
func BuildRoomConnsKey(roomID model.RoomID) string {
	return "arena:room:conns:" + string(roomID)
}

// Bind 写入连接位置，并加入房间连接集合
func (p *Presence) Bind(ctx context.Context, conn model.ConnID, roomID model.RoomID, slot model.Slot) error {
	connKey := BuildConnKey(conn)
	roomKey := BuildRoomConnsKey(roomID)

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, connKey,
			"roomId", string(roomID),
			"slot", int(slot),
			"node", p.nodeID,
			"boundAt", time.Now().UnixMilli())
		pipe.Expire(ctx, connKey, p.ttl)
		pipe.SAdd(ctx, roomKey, string(conn))
		pipe.Expire(ctx, roomKey, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bind presence: %w", err)
	}

	p.logger.Debug("Registered connection presence",
		"connId", string(conn),
		"roomId", string(roomID),
		"slot", slot)
	return nil
}

// Unbind 删除连接位置
func (p *Presence) Unbind(ctx context.Context, conn model.ConnID, roomID model.RoomID) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, BuildConnKey(conn))
		pipe.SRem(ctx, BuildRoomConnsKey(roomID), string(conn))
		return nil
	})
	if err != nil {
		return fmt.Errorf("unbind presence: %w", err)
	}
	return nil
}

// DropRoom 删除房间集合及其中所有连接位置
func (p *Presence) DropRoom(ctx context.Context, roomID model.RoomID) error {
	roomKey := BuildRoomConnsKey(roomID)
	members, err := p.client.SMembers(ctx, roomKey).Result()
	if err != nil {
		return fmt.Errorf("drop room presence: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, BuildConnKey(model.ConnID(m)))
	}
	keys = append(keys, roomKey)

	return p.client.Del(ctx, keys...).Err()
}

// Touch 续期房间及其连接的 TTL（清扫时调用）
func (p *Presence) Touch(ctx context.Context, roomID model.RoomID, conns []model.ConnID) error {
	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, BuildRoomConnsKey(roomID), p.ttl)
		for _, conn := range conns {
			pipe.Expire(ctx, BuildConnKey(conn), p.ttl)
		}
		return nil
	})
	return err
}

// Lookup 查询连接位置，不存在时返回 nil
func (p *Presence) Lookup(ctx context.Context, conn model.ConnID) (*Location, error) {
	fields, err := p.client.HGetAll(ctx, BuildConnKey(conn)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseLocation(conn, fields)
}

// RoomConns 房间内登记的连接
func (p *Presence) RoomConns(ctx context.Context, roomID model.RoomID) ([]model.ConnID, error) {
	members, err := p.client.SMembers(ctx, BuildRoomConnsKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	conns := make([]model.ConnID, len(members))
	for i, m := range members {
		conns[i] = model.ConnID(m)
	}
	return conns, nil
}

// Ping 检查 Redis 连接
func (p *Presence) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close 关闭连接
func (p *Presence) Close() error {
	return p.client.Close()
}

func parseLocation(conn model.ConnID, fields map[string]string) (*Location, error) {
	slot, err := strconv.Atoi(fields["slot"])
	if err != nil {
		return nil, fmt.Errorf("invalid slot %q: %w", fields["slot"], err)
	}
	loc := &Location{
		ConnID: conn,
		RoomID: model.RoomID(fields["roomId"]),
		Slot:   model.Slot(slot),
		NodeID: fields["node"],
	}
	if ms, err := strconv.ParseInt(fields["boundAt"], 10, 64); err == nil {
		loc.BoundAt = time.UnixMilli(ms)
	}
	return loc, nil
}
