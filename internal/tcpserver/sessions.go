package tcpserver

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
)

// Policy 调试会话已满时对新连接的处理
type Policy string

const (
	PolicyReject   Policy = "reject"   // 保留现有会话，拒绝新连接
	PolicyTakeover Policy = "takeover" // 关闭最早的会话，接纳新连接
)

var (
	ErrSessionBusy  = errors.New("debug session busy")
	ErrAcceptRate   = errors.New("accept rate exceeded")
	ErrShuttingDown = errors.New("server shutting down")
)

// 拒绝原因，用作日志字段与指标标签
const (
	RejectBusy     = "busy"
	RejectRate     = "rate"
	RejectShutdown = "shutdown"
)

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAcceptRate):
		return RejectRate
	case errors.Is(err, ErrShuttingDown):
		return RejectShutdown
	default:
		return RejectBusy
	}
}

// sessionTable 在线调试会话表
// 一台设备同一时刻只应有一个调试端；live 按接入顺序保存，接管时踢出最早的会话
type sessionTable struct {
	mu     sync.Mutex
	max    int
	policy Policy
	rate   *rate.Limiter // nil 不限速
	live   []*ConnContext
	closed bool

	admitted  int64
	takeovers int64
	rejected  map[string]int64
}

func newSessionTable(cfg cfgpkg.TCPConfig) *sessionTable {
	t := &sessionTable{
		max:      cfg.MaxSessions,
		policy:   Policy(cfg.OnBusy),
		rejected: make(map[string]int64),
	}
	if t.max <= 0 {
		t.max = 1
	}
	if t.policy != PolicyReject {
		t.policy = PolicyTakeover
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst <= 0 {
			burst = max(1, int(cfg.AcceptRate*2))
		}
		t.rate = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	return t
}

// admit 登记新连接；会话已满时按策略拒绝，或返回被接管的旧会话由调用方关闭
// 先检查接入速率，再检查会话数
func (t *sessionTable) admit(cc *ConnContext) (*ConnContext, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch {
	case t.closed:
		err = ErrShuttingDown
	case t.rate != nil && !t.rate.Allow():
		err = ErrAcceptRate
	case len(t.live) >= t.max && t.policy == PolicyReject:
		err = ErrSessionBusy
	}
	if err != nil {
		t.rejected[rejectReason(err)]++
		return nil, err
	}

	var evicted *ConnContext
	if len(t.live) >= t.max {
		evicted = t.live[0]
		t.live = t.live[1:]
		t.takeovers++
	}
	t.live = append(t.live, cc)
	t.admitted++
	return evicted, nil
}

// remove 连接结束时注销，被接管的会话已不在表中
func (t *sessionTable) remove(cc *ConnContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.live {
		if c == cc {
			t.live = append(t.live[:i], t.live[i+1:]...)
			return
		}
	}
}

// drain 停止接纳新连接，返回仍在线的会话
func (t *sessionTable) drain() []*ConnContext {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return append([]*ConnContext(nil), t.live...)
}

func (t *sessionTable) stats() SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := SessionStats{
		Active:    len(t.live),
		Max:       t.max,
		Policy:    t.policy,
		Admitted:  t.admitted,
		Takeovers: t.takeovers,
		Rejected:  make(map[string]int64, len(t.rejected)),
		Sessions:  make([]SessionInfo, 0, len(t.live)),
	}
	for k, v := range t.rejected {
		st.Rejected[k] = v
	}
	for _, cc := range t.live {
		st.Sessions = append(st.Sessions, cc.info())
	}
	if t.rate != nil {
		st.AcceptRate = float64(t.rate.Limit())
		st.AcceptTokens = t.rate.Tokens()
	}
	return st
}

// SessionStats 调试会话统计
type SessionStats struct {
	Active       int              `json:"active"`
	Max          int              `json:"max"`
	Policy       Policy           `json:"policy"`
	Admitted     int64            `json:"admitted_total"`
	Takeovers    int64            `json:"takeovers_total"`
	Rejected     map[string]int64 `json:"rejected_total"` // by reason
	AcceptRate   float64          `json:"accept_rate,omitempty"`
	AcceptTokens float64          `json:"accept_tokens,omitempty"`
	Sessions     []SessionInfo    `json:"sessions"`
}

// SessionInfo 在线调试端
type SessionInfo struct {
	ID         uint64    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	Since      time.Time `json:"since"`
	LastActive time.Time `json:"last_active"`
}
