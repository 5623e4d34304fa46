package router

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sudooom.arena/internal/model"
)

// RoomLister 房间列表来源（由 room.Manager 实现）
type RoomLister interface {
	Summaries() []model.RoomSummary
}

// MatchLister 对局归档来源（由 repository.MatchRepository 实现）
type MatchLister interface {
	Recent(ctx context.Context, limit int) ([]model.MatchResult, error)
}

// RoomHandler 房间查询接口
type RoomHandler struct {
	rooms   RoomLister
	matches MatchLister
	logger  *slog.Logger
}

// NewRoomHandler 创建房间查询处理器，matches 可以为 nil
func NewRoomHandler(rooms RoomLister, matches MatchLister) *RoomHandler {
	return &RoomHandler{
		rooms:   rooms,
		matches: matches,
		logger:  slog.Default().With("component", "RoomHandler"),
	}
}

// ListRooms GET /api/v1/rooms
// 可选 ?phase=waiting 过滤
func (h *RoomHandler) ListRooms(c *gin.Context) {
	list := h.rooms.Summaries()
	if phase := c.Query("phase"); phase != "" {
		list = slices.DeleteFunc(list, func(s model.RoomSummary) bool {
			return string(s.Phase) != phase
		})
	}
	slices.SortFunc(list, func(a, b model.RoomSummary) int {
		return strings.Compare(string(a.RoomID), string(b.RoomID))
	})

	Success(c, gin.H{
		"rooms": list,
		"total": len(list),
	})
}

// RecentMatches GET /api/v1/matches?limit=20
func (h *RoomHandler) RecentMatches(c *gin.Context) {
	if h.matches == nil {
		Error(c, CodeUnavailable)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(c, CodeInvalidParams)
			return
		}
		limit = n
	}

	matches, err := h.matches.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load matches", "error", err)
		Error(c, CodeServerError)
		return
	}

	Success(c, gin.H{"matches": matches})
}
