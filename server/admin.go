package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter 组装 HTTP 路由：WebSocket 接入、静态资源、管理与监控接口
func NewRouter(m *RoomManager, cfg Config) http.Handler {
	a := &admin{rooms: m, defaultRoom: cfg.DefaultRoom}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", HandleWS(m, cfg.DefaultRoom))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", a.handleMetrics)
	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", a.handleGetConfig)
		r.Post("/config", a.handlePostConfig)
		r.Get("/rooms", a.handleRooms)
	})
	// 前后端分离：将 / 映射到静态资源目录
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}
	return r
}

// requestLogger 用 zap 记录每个请求
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		Log.Debugw("http request",
			"id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

type admin struct {
	rooms       *RoomManager
	defaultRoom string
}

func (a *admin) room(r *http.Request) (*Room, bool) {
	id := r.URL.Query().Get("room")
	if id == "" {
		id = a.defaultRoom
	}
	return a.rooms.GetRoom(id)
}

// configPatch POST /admin/config 的部分更新载荷
type configPatch struct {
	TickRate         *int     `json:"tickRate,omitempty"`
	BroadcastEvery   *int     `json:"broadcastEvery,omitempty"`
	MaxInputsPerTick *int     `json:"maxInputsPerTick,omitempty"`
	GameTimeLimit    *float64 `json:"gameTimeLimit,omitempty"`
	TurnStartDelay   *float64 `json:"turnStartDelay,omitempty"`
	ScoreLimit       *int     `json:"scoreLimit,omitempty"`
	SimulateDropProb *float64 `json:"simulateDropProb,omitempty"`
	SimulateDupProb  *float64 `json:"simulateDupProb,omitempty"`
}

func (p configPatch) apply(c *RoomConfig) {
	setIf(&c.TickRate, p.TickRate)
	setIf(&c.BroadcastEvery, p.BroadcastEvery)
	setIf(&c.MaxInputsPerTick, p.MaxInputsPerTick)
	setIf(&c.GameTimeLimit, p.GameTimeLimit)
	setIf(&c.TurnStartDelay, p.TurnStartDelay)
	setIf(&c.ScoreLimit, p.ScoreLimit)
	setIf(&c.SimulateDropProb, p.SimulateDropProb)
	setIf(&c.SimulateDupProb, p.SimulateDupProb)
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// handleGetConfig GET /admin/config?room=room-1 返回当前配置
func (a *admin) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := a.room(r)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room.Config())
}

// handlePostConfig POST /admin/config?room=room-1 以 JSON 载荷更新部分字段
func (a *admin) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := a.room(r)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	var body configPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	cfg, err := room.UpdateConfig(body.apply)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	Log.Infow("config updated", "room", room.ID, "config", cfg)
	writeJSON(w, http.StatusOK, cfg)
}

// handleRooms GET /admin/rooms 列出所有房间概况
func (a *admin) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := a.rooms.Rooms()
	out := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMetrics GET /metrics?room=room-1 输出指定房间的运行指标
func (a *admin) handleMetrics(w http.ResponseWriter, r *http.Request) {
	room, ok := a.room(r)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room.ID,
		"tick":    room.Tick(),
		"metrics": room.Metrics().Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
