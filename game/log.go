package game

import "go.uber.org/zap"

// logger 默认丢弃输出，由宿主进程通过 SetLogger 注入
var logger = zap.NewNop().Sugar()

// SetLogger 设置 game 包使用的日志器
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		logger = l
	}
}
