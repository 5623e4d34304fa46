package router

import (
	"github.com/gin-gonic/gin"

	"sudooom.arena/internal/health"
)

// Options 路由参数
type Options struct {
	Mode           string // gin 模式，默认 release
	AllowedOrigins []string
}

// SetupRouter 设置路由
func SetupRouter(opts Options, ws gin.HandlerFunc, checker *health.Checker, roomHandler *RoomHandler) *gin.Engine {
	if opts.Mode == "" {
		opts.Mode = gin.ReleaseMode
	}
	gin.SetMode(opts.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger())

	r.GET("/ws", ws)
	r.GET("/health", checker.Health)
	r.GET("/ready", checker.Ready)

	v1 := r.Group("/api/v1")
	v1.Use(CORS(opts.AllowedOrigins))
	{
		v1.GET("/rooms", roomHandler.ListRooms)
		v1.GET("/matches", roomHandler.RecentMatches)
	}

	return r
}
