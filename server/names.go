package server

import (
	"fmt"
	"strings"
	"unicode"

	swearfilter "github.com/JoshuaDoes/gofuckyourself"
)

// MaxNameLen 玩家名最大字符数
const MaxNameLen = 16

// 默认屏蔽的名字片段，避免冒充服务端
var reservedNames = []string{"server", "admin", "moderator"}

// NameFilter 清理客户端提交的玩家名
type NameFilter struct {
	filter *swearfilter.SwearFilter
}

func NewNameFilter(blocked ...string) *NameFilter {
	words := append(append([]string(nil), reservedNames...), blocked...)
	return &NameFilter{filter: swearfilter.NewSwearFilter(true, words...)}
}

// Blocked 名字是否命中屏蔽词
func (f *NameFilter) Blocked(name string) bool {
	tripped, err := f.filter.Check(strings.ToLower(name))
	if err != nil {
		return true
	}
	if len(tripped) > 0 {
		Log.Debugw("name tripped filter", "name", name, "words", tripped)
		return true
	}
	return false
}

// Clean 去掉控制字符并截断；为空或命中屏蔽词时使用 "Player N"
func (f *NameFilter) Clean(name string, seat int) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if r := []rune(name); len(r) > MaxNameLen {
		name = strings.TrimSpace(string(r[:MaxNameLen]))
	}
	if name == "" || f.Blocked(name) {
		return fmt.Sprintf("Player %d", seat+1)
	}
	return name
}
