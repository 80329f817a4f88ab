package server

import "time"

func tickInterval(rate int) time.Duration {
	return time.Second / time.Duration(rate)
}

// StartTicker 启动房间的 Tick 循环（单线程推进世界）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go func() {
		defer close(r.done)
		rate := r.Config().TickRate
		ticker := time.NewTicker(tickInterval(rate))
		defer ticker.Stop()
		Log.Infow("room ticker started", "room", r.ID, "tick_rate", rate)
		for {
			select {
			case <-r.quit:
				r.closeAll()
				return
			case <-ticker.C:
				// 核心循环：处理输入 → 更新世界 → 广播结果
				r.step()
				// 热更新 tick 频率
				if next := r.Config().TickRate; next != rate {
					rate = next
					ticker.Reset(tickInterval(rate))
					Log.Infow("room tick rate changed", "room", r.ID, "tick_rate", rate)
				}
			}
		}
	}()
}

// Stop 停止 Tick 并等待循环退出
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	if r.tickerStarted {
		<-r.done
	}
}
