package game

// TimerState 倒计时状态：Idle → Running → Fired，Fired 后可再次 Start
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerRunning
	TimerFired
)

func (s TimerState) String() string {
	switch s {
	case TimerRunning:
		return "running"
	case TimerFired:
		return "fired"
	default:
		return "idle"
	}
}

// CountdownTimer 可重复使用的单次倒计时，时间只通过 Tick 推进（模拟时间）。
// 计时器由启动它的实体私有持有，其他实体无法提前停止它
type CountdownTimer struct {
	duration  float64
	remaining float64
	state     TimerState
	stopped   listeners[struct{}]
}

func NewCountdownTimer(duration float64) *CountdownTimer {
	return &CountdownTimer{duration: duration}
}

func (t *CountdownTimer) State() TimerState    { return t.state }
func (t *CountdownTimer) Remaining() float64   { return t.remaining }
func (t *CountdownTimer) Duration() float64    { return t.duration }
func (t *CountdownTimer) SetDuration(d float64) { t.duration = d }

// Start 以默认时长启动；运行中再次调用会重新计时，不会重复触发
func (t *CountdownTimer) Start() { t.StartWith(t.duration) }

func (t *CountdownTimer) StartWith(d float64) {
	t.remaining = d
	t.state = TimerRunning
}

// Stop 提前结束：Running → Fired，完成通知只触发一次
func (t *CountdownTimer) Stop() {
	if t.state != TimerRunning {
		return
	}
	t.remaining = 0
	t.state = TimerFired
	t.stopped.emit(struct{}{})
}

// Reset 回到 Idle，不发通知
func (t *CountdownTimer) Reset() {
	t.remaining = 0
	t.state = TimerIdle
}

func (t *CountdownTimer) Tick(dt float64) {
	if t.state != TimerRunning {
		return
	}
	t.remaining -= dt
	if t.remaining <= 0 {
		t.Stop()
	}
}

// OnStop 订阅完成通知；持有者销毁前应 Cancel，owner 失效时回调也会被跳过
func (t *CountdownTimer) OnStop(owner Lifetime, fn func()) Subscription {
	return t.stopped.add(owner, func(struct{}) { fn() })
}

// Handle 延时调用句柄，0 表示无效
type Handle uint64

type scheduled struct {
	id    Handle
	at    float64
	owner Lifetime
	fn    func()
}

// Scheduler 模拟时间上的延时调用（状态延迟切换、显示 fighter、子弹寿命等）
type Scheduler struct {
	now   float64
	next  Handle
	items []scheduled
}

func NewScheduler() *Scheduler { return &Scheduler{} }

func (s *Scheduler) Now() float64 { return s.now }
func (s *Scheduler) Pending() int { return len(s.items) }

// After 在 delay 秒后调用 fn；owner 已销毁时调用被丢弃
func (s *Scheduler) After(delay float64, owner Lifetime, fn func()) Handle {
	s.next++
	s.items = append(s.items, scheduled{id: s.next, at: s.now + delay, owner: owner, fn: fn})
	return s.next
}

func (s *Scheduler) Cancel(h Handle) bool {
	if h == 0 {
		return false
	}
	for i := range s.items {
		if s.items[i].id == h {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// CancelOwner 取消某个实体的全部延时调用
func (s *Scheduler) CancelOwner(owner Lifetime) int {
	n := 0
	kept := s.items[:0]
	for _, it := range s.items {
		if it.owner == owner {
			n++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return n
}

// Advance 推进时间并按到期先后执行回调，同一时刻按登记顺序
func (s *Scheduler) Advance(dt float64) {
	s.now += dt
	for {
		idx := -1
		for i := range s.items {
			if s.items[i].at > s.now {
				continue
			}
			if idx == -1 || s.items[i].at < s.items[idx].at {
				idx = i
			}
		}
		if idx == -1 {
			return
		}
		it := s.items[idx]
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		if it.owner != nil && !it.owner.Alive() {
			continue
		}
		it.fn()
	}
}
