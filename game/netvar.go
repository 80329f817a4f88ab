package game

// Replicated 可被复制到远端观察者的状态
type Replicated interface {
	Name() string
	Authority() Authority
	Dirty() bool
	Snapshot() any
	clearDirty()
}

// Writable 可接受来自网络的（已编码）写入
type Writable interface {
	Replicated
	SetEncoded(writer PeerID, decode func(out any) error) bool
}

// NetVar 单值复制变量：只有 authority 可写，写入本地立即可见，
// 远端在下一次广播时才能看到（最终一致）
type NetVar[T comparable] struct {
	name    string
	auth    Authority
	value   T
	dirty   bool
	changed listeners[[2]T]
}

func NewNetVar[T comparable](name string, auth Authority, initial T) *NetVar[T] {
	return &NetVar[T]{name: name, auth: auth, value: initial, dirty: true}
}

func (v *NetVar[T]) Name() string         { return v.name }
func (v *NetVar[T]) Authority() Authority { return v.auth }
func (v *NetVar[T]) Get() T               { return v.value }
func (v *NetVar[T]) Dirty() bool          { return v.dirty }
func (v *NetVar[T]) Snapshot() any        { return v.value }
func (v *NetVar[T]) clearDirty()          { v.dirty = false }

// Set 写入新值。非 authority 的写入被拒绝并返回 false；
// 与当前值相同的写入被接受但不触发通知
func (v *NetVar[T]) Set(writer PeerID, nv T) bool {
	if !guard(v.auth, writer, "set "+v.name) {
		return false
	}
	if nv == v.value {
		return true
	}
	old := v.value
	v.value = nv
	v.dirty = true
	v.changed.emit([2]T{old, nv})
	return true
}

// SetEncoded 先校验权限再解码，避免越权方的负载被解析
func (v *NetVar[T]) SetEncoded(writer PeerID, decode func(out any) error) bool {
	if !guard(v.auth, writer, "set "+v.name) {
		return false
	}
	var nv T
	if err := decode(&nv); err != nil {
		logger.Warnw("replicated write dropped, bad value", "var", v.name, "writer", writer, "err", err)
		return false
	}
	return v.Set(writer, nv)
}

// OnChange 订阅值变化，owner 销毁后回调自动失效
func (v *NetVar[T]) OnChange(owner Lifetime, fn func(old, new T)) Subscription {
	return v.changed.add(owner, func(c [2]T) { fn(c[0], c[1]) })
}

// NetList 复制列表（比分数组）
type NetList[T comparable] struct {
	name    string
	auth    Authority
	items   []T
	dirty   bool
	changed listeners[[]T]
}

func NewNetList[T comparable](name string, auth Authority) *NetList[T] {
	return &NetList[T]{name: name, auth: auth, dirty: true}
}

func (l *NetList[T]) Name() string         { return l.name }
func (l *NetList[T]) Authority() Authority { return l.auth }
func (l *NetList[T]) Dirty() bool          { return l.dirty }
func (l *NetList[T]) Snapshot() any        { return l.Values() }
func (l *NetList[T]) clearDirty()          { l.dirty = false }
func (l *NetList[T]) Len() int             { return len(l.items) }

func (l *NetList[T]) Values() []T {
	return append([]T{}, l.items...)
}

func (l *NetList[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(l.items) {
		return zero, false
	}
	return l.items[i], true
}

// Reset 清空并填充 n 个零值
func (l *NetList[T]) Reset(writer PeerID, n int) bool {
	if !guard(l.auth, writer, "reset "+l.name) {
		return false
	}
	if n < 0 {
		n = 0
	}
	l.items = make([]T, n)
	l.touch()
	return true
}

func (l *NetList[T]) Append(writer PeerID, v T) bool {
	if !guard(l.auth, writer, "append "+l.name) {
		return false
	}
	l.items = append(l.items, v)
	l.touch()
	return true
}

func (l *NetList[T]) Set(writer PeerID, i int, v T) bool {
	if !guard(l.auth, writer, "set "+l.name) {
		return false
	}
	if i < 0 || i >= len(l.items) {
		logger.Errorw("replicated list index out of range", "var", l.name, "index", i, "len", len(l.items))
		return false
	}
	if l.items[i] == v {
		return true
	}
	l.items[i] = v
	l.touch()
	return true
}

func (l *NetList[T]) RemoveAt(writer PeerID, i int) bool {
	if !guard(l.auth, writer, "remove "+l.name) {
		return false
	}
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.touch()
	return true
}

func (l *NetList[T]) OnChange(owner Lifetime, fn func(values []T)) Subscription {
	return l.changed.add(owner, fn)
}

func (l *NetList[T]) touch() {
	l.dirty = true
	l.changed.emit(l.Values())
}

// ReplicaSet 按名字索引一个会话中的全部复制状态，供传输层收集增量
type ReplicaSet struct {
	order []string
	vars  map[string]Replicated
}

func NewReplicaSet() *ReplicaSet {
	return &ReplicaSet{vars: make(map[string]Replicated)}
}

func (r *ReplicaSet) Add(v Replicated) {
	if _, ok := r.vars[v.Name()]; !ok {
		r.order = append(r.order, v.Name())
	}
	r.vars[v.Name()] = v
}

func (r *ReplicaSet) Remove(name string) {
	if _, ok := r.vars[name]; !ok {
		return
	}
	delete(r.vars, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *ReplicaSet) Lookup(name string) (Replicated, bool) {
	v, ok := r.vars[name]
	return v, ok
}

func (r *ReplicaSet) Len() int { return len(r.order) }

// CollectDirty 返回自上次收集以来变化过的值并清除脏标记；无变化时返回 nil
func (r *ReplicaSet) CollectDirty() map[string]any {
	var out map[string]any
	for _, name := range r.order {
		v := r.vars[name]
		if !v.Dirty() {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[name] = v.Snapshot()
		v.clearDirty()
	}
	return out
}

// Full 完整快照（新连接加入时发送），不影响脏标记
func (r *ReplicaSet) Full() map[string]any {
	out := make(map[string]any, len(r.order))
	for _, name := range r.order {
		out[name] = r.vars[name].Snapshot()
	}
	return out
}

// WriteEncoded 处理来自网络的写入请求
func (r *ReplicaSet) WriteEncoded(writer PeerID, name string, decode func(out any) error) bool {
	v, ok := r.vars[name]
	if !ok {
		logger.Warnw("replicated write to unknown var", "var", name, "writer", writer)
		return false
	}
	w, ok := v.(Writable)
	if !ok {
		// 列表不接受网络写入，只能由服务端在本地修改
		violations.Add(1)
		logger.Warnw("replicated var is not writable over the wire", "var", name, "writer", writer)
		return false
	}
	return w.SetEncoded(writer, decode)
}
