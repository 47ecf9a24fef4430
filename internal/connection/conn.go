package connection

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/edlink/internal/pipeline"
	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

var (
	// ErrTransportRead 底层读取失败（含 EOF），连接应关闭
	ErrTransportRead = errors.New("transport read error")

	// ErrTransportWrite 底层写入失败，连接应关闭
	ErrTransportWrite = errors.New("transport write error")

	// ErrWrongRole 在不匹配的角色上调用了角色专属操作
	ErrWrongRole = errors.New("operation not valid for connection role")
)

// DefaultReadSize 单次读取的缓冲大小
const DefaultReadSize = 256

// Transport 双向字节流（TCP、串口、内存管道）
// 读超时（实现 Timeout() bool 的错误）视为“暂无数据”
type Transport interface {
	io.Reader
	io.Writer
}

// Role 连接角色
type Role uint8

const (
	RoleClient Role = iota // 调试器侧：发请求、收响应
	RoleHost               // 设备侧：收请求、回响应
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "client"
}

// Conn 单条协议连接：传输 + 中间件管道 + 帧重组 + 编解码 + 角色分发
// 不做并发保护：同一 Conn 只应由一个 goroutine 使用
type Conn struct {
	id      string
	role    Role
	t       Transport
	pipe    *pipeline.Pipeline
	reasm   *ed.Reassembler
	logger  *zap.Logger
	rec     Recorder
	unit    uint8
	session uint8

	identity IdentityProvider
	regs     RegisterAccess
	sampler  ChannelSampler

	readBuf []byte
	readErr error
	pending []byte
}

// Option 连接配置项
type Option func(*Conn)

// WithPipeline 设置中间件管道（默认空管道）
func WithPipeline(p *pipeline.Pipeline) Option { return func(c *Conn) { c.pipe = p } }

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option { return func(c *Conn) { c.logger = l } }

// WithRecorder 设置观测事件接收方
func WithRecorder(r Recorder) Option { return func(c *Conn) { c.rec = r } }

// WithIdentity 设置设备身份（host 角色）
func WithIdentity(p IdentityProvider) Option { return func(c *Conn) { c.identity = p } }

// WithRegisters 设置寄存器访问（host 角色）
func WithRegisters(r RegisterAccess) Option { return func(c *Conn) { c.regs = r } }

// WithSampler 设置通道采样（host 角色）
func WithSampler(s ChannelSampler) Option { return func(c *Conn) { c.sampler = s } }

// WithMaxBuffered 设置帧重组缓冲上限
func WithMaxBuffered(n int) Option { return func(c *Conn) { c.reasm = ed.NewReassembler(n) } }

// WithReadSize 设置单次读取大小
func WithReadSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.readBuf = make([]byte, n)
		}
	}
}

// WithAddress 设置 client 请求使用的 unit 与起始 session，每次 Request 后 session 加一
func WithAddress(unit, session uint8) Option {
	return func(c *Conn) { c.unit, c.session = unit, session }
}

// WithID 指定连接ID（默认随机 UUID）
func WithID(id string) Option { return func(c *Conn) { c.id = id } }

// New 创建连接
func New(t Transport, role Role, opts ...Option) *Conn {
	c := &Conn{
		role:    role,
		t:       t,
		unit:    1,
		session: 1,
	}
	for _, o := range opts {
		o(c)
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.pipe == nil {
		c.pipe = pipeline.New()
	}
	if c.reasm == nil {
		c.reasm = ed.NewReassembler(0)
	}
	if c.readBuf == nil {
		c.readBuf = make([]byte, DefaultReadSize)
	}
	if c.rec == nil {
		c.rec = nopRecorder{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("conn_id", c.id), zap.String("role", role.String()))
	return c
}

// ID 返回连接ID
func (c *Conn) ID() string { return c.id }

// Role 返回连接角色
func (c *Conn) Role() Role { return c.role }

// Close 关闭底层传输（若支持）
func (c *Conn) Close() error {
	if cl, ok := c.t.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// SendPacket 编码 -> 管道发送方向 -> 写入传输
func (c *Conn) SendPacket(content ed.Content) error {
	wire, err := c.encode(content)
	if err != nil {
		return err
	}
	return c.write(wire)
}

// ReceivePacket 取出一帧并解码
// 优先消费已缓冲的完整帧，否则读取一次传输；尚无完整帧时返回 (nil, nil)
// 校验/解析错误返回给调用方，但不会破坏重组缓冲，后续帧仍可正常解析
func (c *Conn) ReceivePacket() (*ed.Content, error) {
	frame, err := c.reasm.Next()
	if err != nil {
		return nil, c.frameError(err)
	}
	if frame == nil {
		if frame, err = c.readFrame(); err != nil || frame == nil {
			return nil, err
		}
	}
	return c.decode(frame)
}

// readFrame 读取一次传输并尝试重组出一帧
func (c *Conn) readFrame() ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	n, rerr := c.t.Read(c.readBuf)
	if rerr != nil && !isTimeout(rerr) {
		c.readErr = fmt.Errorf("%w: %w", ErrTransportRead, rerr)
		c.rec.Record(Event{Kind: EventTransportError, ConnID: c.id, Role: c.role, Err: c.readErr})
	}
	if n == 0 {
		return nil, c.readErr
	}
	chunk, err := c.pipe.Inbound(c.readBuf[:n])
	if err != nil {
		c.logger.Warn("inbound pipeline failed", zap.Int("len", n), zap.Error(err))
		c.rec.Record(Event{Kind: EventPipelineError, ConnID: c.id, Role: c.role, Bytes: n, Err: err})
		return nil, err
	}
	frame, err := c.reasm.Feed(chunk)
	if err != nil {
		return nil, c.frameError(err)
	}
	if frame == nil && c.readErr != nil {
		return nil, c.readErr
	}
	return frame, nil
}

func (c *Conn) frameError(err error) error {
	c.logger.Warn("frame dropped", zap.Error(err))
	c.rec.Record(Event{Kind: EventFrameTooLarge, ConnID: c.id, Role: c.role, Err: err})
	return err
}

// decode 按角色选择方向：client 收响应，host 收请求
func (c *Conn) decode(frame []byte) (*ed.Content, error) {
	dir := ed.Request
	if c.role == RoleClient {
		dir = ed.Response
	}
	content, err := ed.Decode(frame, dir)
	if err != nil {
		var uc *ed.UnknownCommandError
		if errors.As(err, &uc) {
			c.logger.Warn("unknown command", zap.Stringer("cmd", uc.Header.Command),
				zap.Uint8("unit", uc.Header.Unit), zap.Uint8("session", uc.Header.Session))
			c.rec.Record(Event{Kind: EventUnknownCommand, ConnID: c.id, Role: c.role, Header: uc.Header, Bytes: len(frame), Err: err})
			return nil, err
		}
		c.logger.Warn("frame rejected", zap.Int("len", len(frame)), zap.Error(err))
		c.rec.Record(Event{Kind: EventDecodeError, ConnID: c.id, Role: c.role, Bytes: len(frame), Err: err})
		return nil, err
	}
	c.rec.Record(Event{Kind: EventFrameIn, ConnID: c.id, Role: c.role, Header: content.Header(), Bytes: len(frame)})
	return content, nil
}

func (c *Conn) encode(content ed.Content) ([]byte, error) {
	raw, err := ed.Encode(content)
	if err != nil {
		return nil, err
	}
	wire, err := c.pipe.Outbound(raw)
	if err != nil {
		c.logger.Warn("outbound pipeline failed", zap.Stringer("cmd", content.Command()), zap.Error(err))
		c.rec.Record(Event{Kind: EventPipelineError, ConnID: c.id, Role: c.role, Header: content.Header(), Err: err})
		return nil, err
	}
	c.rec.Record(Event{Kind: EventFrameOut, ConnID: c.id, Role: c.role, Header: content.Header(), Bytes: len(wire)})
	return wire, nil
}

func (c *Conn) write(wire []byte) error {
	if len(wire) == 0 {
		return nil
	}
	if _, err := c.t.Write(wire); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportWrite, err)
		c.rec.Record(Event{Kind: EventTransportError, ConnID: c.id, Role: c.role, Bytes: len(wire), Err: err})
		return err
	}
	return nil
}

// enqueue 将响应编码后追加到待发送缓冲
func (c *Conn) enqueue(content ed.Content) error {
	wire, err := c.encode(content)
	if err != nil {
		return err
	}
	c.pending = append(c.pending, wire...)
	return nil
}

// TakePending 取走全部待发送数据，再次调用返回空
func (c *Conn) TakePending() []byte {
	out := c.pending
	c.pending = nil
	return out
}

// Flush 将待发送数据写入传输
func (c *Conn) Flush() error {
	return c.write(c.TakePending())
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
