package game

// Lifetime 由实体实现；订阅者已销毁时回调会被安全跳过
type Lifetime interface {
	Alive() bool
}

// Subscription 订阅句柄，Cancel 可重复调用
type Subscription struct {
	cancel func()
}

func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

type listener[T any] struct {
	id    uint64
	owner Lifetime
	fn    func(T)
}

// listeners 通知列表。owner 为 nil 表示与发布方同生命周期
type listeners[T any] struct {
	next  uint64
	items []listener[T]
}

func (l *listeners[T]) add(owner Lifetime, fn func(T)) Subscription {
	l.next++
	id := l.next
	l.items = append(l.items, listener[T]{id: id, owner: owner, fn: fn})
	return Subscription{cancel: func() { l.remove(id) }}
}

func (l *listeners[T]) remove(id uint64) {
	for i := range l.items {
		if l.items[i].id == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *listeners[T]) has(id uint64) bool {
	for i := range l.items {
		if l.items[i].id == id {
			return true
		}
	}
	return false
}

func (l *listeners[T]) emit(v T) {
	// 回调里可能增删订阅，遍历快照
	snapshot := append([]listener[T](nil), l.items...)
	for _, it := range snapshot {
		if !l.has(it.id) {
			continue
		}
		if it.owner != nil && !it.owner.Alive() {
			l.remove(it.id)
			continue
		}
		it.fn(v)
	}
}

func (l *listeners[T]) len() int { return len(l.items) }
