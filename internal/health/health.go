package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Status 健康状态
type Status struct {
	Service     string            `json:"service"`
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Rooms       int               `json:"rooms"`
	Players     int               `json:"players"`
	Connections int               `json:"connections"`
	Deps        map[string]string `json:"deps"`
}

// RoomCounter 房间统计接口
type RoomCounter interface {
	Count() int
	PlayerCount() int
}

// ConnectionCounter 连接计数器接口
type ConnectionCounter interface {
	Count() int
}

// Dependency 外部依赖检查
type Dependency struct {
	Name     string
	Required bool // 必需依赖不可用时 /ready 返回 503
	Check    func(ctx context.Context) error
}

// Checker 健康检查器
type Checker struct {
	service     string
	startTime   time.Time
	rooms       RoomCounter
	connCounter ConnectionCounter
	deps        []Dependency
}

// NewChecker 创建健康检查器，connCounter 可以为 nil
func NewChecker(service string, rooms RoomCounter, connCounter ConnectionCounter, deps ...Dependency) *Checker {
	return &Checker{
		service:     service,
		startTime:   time.Now(),
		rooms:       rooms,
		connCounter: connCounter,
		deps:        deps,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: h.service,
		Status:  "ok",
		Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
		Rooms:   h.rooms.Count(),
		Players: h.rooms.PlayerCount(),
		Deps:    make(map[string]string, len(h.deps)),
	}
	if h.connCounter != nil {
		status.Connections = h.connCounter.Count()
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, dep := range h.deps {
		if err := dep.Check(checkCtx); err != nil {
			status.Deps[dep.Name] = "disconnected"
			if dep.Required {
				status.Status = "degraded"
			}
			continue
		}
		status.Deps[dep.Name] = "connected"
	}

	return status
}

// IsHealthy 必需依赖是否都可用
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Status == "ok"
}

// Health GET /health
func (h *Checker) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.Check(c.Request.Context()))
}

// Ready GET /ready
func (h *Checker) Ready(c *gin.Context) {
	if h.IsHealthy(c.Request.Context()) {
		c.String(http.StatusOK, "OK")
		return
	}
	c.String(http.StatusServiceUnavailable, "Not Ready")
}
