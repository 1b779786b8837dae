// Package notice keeps the transient status messages shown next to a form,
// dialog or panel. Each area holds at most one notice; showing a new one
// replaces the old, and the user can dismiss it.
package notice

import (
	"sync"
	"time"
)

type Kind string

const (
	Success Kind = "success"
	Warning Kind = "warning"
	Error   Kind = "error"
)

// Areas used by the services.
const (
	AreaLogin      = "login"
	AreaRegister   = "register"
	AreaChats      = "chats"
	AreaCreateChat = "create-chat"
	AreaCreateUser = "create-user"
	AreaAdmin      = "admin"
)

type Notice struct {
	Area    string
	Kind    Kind
	Text    string
	Posted  time.Time
	version uint64
}

// Board is safe for concurrent use.
type Board struct {
	mu       sync.Mutex
	notices  map[string]Notice
	version  uint64
	onChange func(Notice, bool)
}

func NewBoard() *Board {
	return &Board{notices: make(map[string]Notice)}
}

// OnChange registers fn to be called after every Show (shown=true) and
// Dismiss (shown=false). fn runs without the board's lock held.
func (b *Board) OnChange(fn func(n Notice, shown bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Board) Show(area string, kind Kind, text string) Notice {
	b.mu.Lock()
	b.version++
	n := Notice{Area: area, Kind: kind, Text: text, Posted: time.Now(), version: b.version}
	b.notices[area] = n
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn(n, true)
	}
	return n
}

func (b *Board) Current(area string) (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notices[area]
	return n, ok
}

func (b *Board) Dismiss(area string) {
	b.mu.Lock()
	n, ok := b.notices[area]
	delete(b.notices, area)
	fn := b.onChange
	b.mu.Unlock()

	if ok && fn != nil {
		fn(n, false)
	}
}

// DismissAfter removes n after d unless it has been replaced meanwhile, then
// runs then (if non-nil). The returned timer can be stopped to cancel.
func (b *Board) DismissAfter(n Notice, d time.Duration, then func()) *time.Timer {
	return time.AfterFunc(d, func() {
		b.mu.Lock()
		cur, ok := b.notices[n.Area]
		stillShown := ok && cur.version == n.version
		b.mu.Unlock()
		if !stillShown {
			return
		}
		b.Dismiss(n.Area)
		if then != nil {
			then()
		}
	})
}
