package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"spacewar/game"
)

// 环境变量前缀，例如 SPACEWAR_ADDR、SPACEWAR_TICK_RATE
const envPrefix = "SPACEWAR_"

// RoomConfig 房间运行参数。除会话参数外都可以通过 /admin/config 热更新；
// 会话参数（时间、倒计时、比分上限）在下一个会话生效
type RoomConfig struct {
	TickRate         int     `json:"tickRate"`       // 每秒 tick 数
	BroadcastEvery   int     `json:"broadcastEvery"` // 每 N 个 tick 广播一次状态
	MaxInputsPerTick int     `json:"maxInputsPerTick"`
	GameTimeLimit    float64 `json:"gameTimeLimit"`
	TurnStartDelay   float64 `json:"turnStartDelay"`
	ScoreLimit       int     `json:"scoreLimit"` // 0 表示只由时间结束对局
	SimulateDropProb float64 `json:"simulateDropProb"`
	SimulateDupProb  float64 `json:"simulateDupProb"`
}

func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TickRate:         50,
		BroadcastEvery:   2,
		MaxInputsPerTick: 8,
		GameTimeLimit:    120,
		TurnStartDelay:   3,
	}
}

// Validate 检查取值范围
func (c RoomConfig) Validate() error {
	switch {
	case c.TickRate <= 0 || c.TickRate > 240:
		return fmt.Errorf("tick rate %d out of range (1-240)", c.TickRate)
	case c.BroadcastEvery <= 0:
		return fmt.Errorf("broadcast interval must be positive, got %d", c.BroadcastEvery)
	case c.MaxInputsPerTick <= 0:
		return fmt.Errorf("max inputs per tick must be positive, got %d", c.MaxInputsPerTick)
	case c.GameTimeLimit <= 0:
		return fmt.Errorf("game time limit must be positive, got %v", c.GameTimeLimit)
	case c.TurnStartDelay < 0:
		return fmt.Errorf("turn start delay must not be negative, got %v", c.TurnStartDelay)
	case c.ScoreLimit < 0:
		return fmt.Errorf("score limit must not be negative, got %d", c.ScoreLimit)
	case c.SimulateDropProb < 0 || c.SimulateDropProb > 1:
		return fmt.Errorf("drop probability %v out of range (0-1)", c.SimulateDropProb)
	case c.SimulateDupProb < 0 || c.SimulateDupProb > 1:
		return fmt.Errorf("duplicate probability %v out of range (0-1)", c.SimulateDupProb)
	}
	return nil
}

// Step 固定步长（秒）
func (c RoomConfig) Step() float64 { return 1 / float64(c.TickRate) }

// SessionConfig 转换为一个新会话的参数
func (c RoomConfig) SessionConfig() game.Config {
	cfg := game.DefaultConfig()
	cfg.GameTimeLimit = c.GameTimeLimit
	cfg.TurnStartDelay = c.TurnStartDelay
	if c.ScoreLimit > 0 {
		cfg.GameOver = game.ScoreLimit(c.ScoreLimit)
	}
	return cfg
}

// Config 进程配置
type Config struct {
	Addr        string
	StaticDir   string
	DefaultRoom string
	Log         LogConfig
	Room        RoomConfig
}

func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		StaticDir:   "web",
		DefaultRoom: "room-1",
		Log:         LogConfig{File: "app.log", Level: "debug"},
		Room:        DefaultRoomConfig(),
	}
}

// LoadConfig 默认值 → .env 文件（可选）→ SPACEWAR_* 环境变量
func LoadConfig(envFile string) (Config, error) {
	cfg := DefaultConfig()
	if envFile != "" {
		// .env 不覆盖已经存在的环境变量
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Room.Validate(); err != nil {
		return cfg, fmt.Errorf("room config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("ADDR", &c.Addr)
	envString("STATIC_DIR", &c.StaticDir)
	envString("DEFAULT_ROOM", &c.DefaultRoom)
	envString("LOG_FILE", &c.Log.File)
	envString("LOG_LEVEL", &c.Log.Level)

	var errs []error
	errs = append(errs,
		envBool("LOG_STDERR", &c.Log.Stderr),
		envInt("TICK_RATE", &c.Room.TickRate),
		envInt("BROADCAST_EVERY", &c.Room.BroadcastEvery),
		envInt("MAX_INPUTS_PER_TICK", &c.Room.MaxInputsPerTick),
		envFloat("GAME_TIME_LIMIT", &c.Room.GameTimeLimit),
		envFloat("TURN_START_DELAY", &c.Room.TurnStartDelay),
		envInt("SCORE_LIMIT", &c.Room.ScoreLimit),
		envFloat("SIMULATE_DROP_PROB", &c.Room.SimulateDropProb),
		envFloat("SIMULATE_DUP_PROB", &c.Room.SimulateDupProb),
	)
	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
