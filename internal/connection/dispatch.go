package connection

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// Dispatch 按角色处理一帧已解码内容
//   - client：响应帧记录后原样返回；非响应帧按未知指令上报
//   - host：生成响应并追加到待发送缓冲（TakePending/Flush 取走），返回该响应
func (c *Conn) Dispatch(ctx context.Context, content *ed.Content) (*ed.Content, error) {
	if content == nil || content.Payload == nil {
		return nil, fmt.Errorf("%w: empty content", ed.ErrMalformedPayload)
	}
	if c.role == RoleHost {
		return c.dispatchHost(ctx, content)
	}
	return c.dispatchClient(content)
}

func (c *Conn) dispatchClient(content *ed.Content) (*ed.Content, error) {
	switch p := content.Payload.(type) {
	case *ed.GetVersionResponse:
		c.logger.Info("received version",
			zap.Stringer("debug", p.Debug), zap.Stringer("app", p.App),
			zap.String("name", p.Name), zap.Binary("serial", p.Serial))
	case *ed.WriteRegisterResponse:
		c.logger.Info("received write result", zap.Stringer("result", p.Result))
	case *ed.GetInfoResponse:
		c.logger.Info("received device info",
			zap.Uint8("protocol", p.ProtocolVersion), zap.Uint8("category", p.Category), zap.Uint8("channels", p.Channels))
	case *ed.ReadChannelDataResponse:
		c.logger.Debug("received channel data",
			zap.Uint32("timestamp", p.Timestamp), zap.Uint16("channels", p.Channels))
	default:
		return nil, c.unknown(content.Header(), ed.Request)
	}
	c.rec.Record(Event{Kind: EventResponse, ConnID: c.id, Role: c.role, Header: content.Header(), Content: content})
	return content, nil
}

func (c *Conn) dispatchHost(ctx context.Context, content *ed.Content) (*ed.Content, error) {
	var resp ed.Payload
	switch p := content.Payload.(type) {
	case *ed.GetVersionRequest:
		if c.identity == nil {
			return nil, c.unsupported(content.Header())
		}
		v := c.identity.VersionInfo()
		resp = &v
	case *ed.GetInfoRequest:
		if c.identity == nil {
			return nil, c.unsupported(content.Header())
		}
		info := c.identity.DeviceInfo()
		resp = &info
	case *ed.WriteRegisterRequest:
		if c.regs == nil {
			return nil, c.unsupported(content.Header())
		}
		result := c.writeRegister(ctx, content.Header(), p)
		resp = &ed.WriteRegisterResponse{Result: result}
	case *ed.ReadChannelDataRequest:
		if c.sampler == nil {
			return nil, c.unsupported(content.Header())
		}
		sample := c.sampler.Sample(p.Mode)
		resp = &sample
	default:
		return nil, c.unknown(content.Header(), ed.Response)
	}

	reply := ed.Content{Unit: content.Unit, Session: content.Session, Payload: resp}
	if err := c.enqueue(reply); err != nil {
		return nil, err
	}
	c.logger.Debug("responded", zap.Stringer("cmd", reply.Command()),
		zap.Uint8("unit", reply.Unit), zap.Uint8("session", reply.Session))
	return &reply, nil
}

// writeRegister 校验偏移与数据后交由寄存器访问执行
func (c *Conn) writeRegister(ctx context.Context, h ed.Header, p *ed.WriteRegisterRequest) ed.WriteResult {
	result := ed.WriteInvalidOffset
	if len(p.Data) > 0 && uint64(p.Offset)+uint64(len(p.Data)) <= math.MaxUint32+1 {
		var err error
		result, err = c.regs.WriteRegister(ctx, p.Offset, p.Control, p.Data)
		if err != nil {
			c.logger.Error("register write failed",
				zap.Uint32("offset", p.Offset), zap.Int("len", len(p.Data)), zap.Error(err))
			result = ed.WriteFault
		}
	}
	c.rec.Record(Event{Kind: EventRegisterWrite, ConnID: c.id, Role: c.role, Header: h, Bytes: len(p.Data), Result: result})
	return result
}

// unknown 方向不符的帧（如 client 收到请求）按未知指令上报
func (c *Conn) unknown(h ed.Header, dir ed.Direction) error {
	err := &ed.UnknownCommandError{Header: h, Direction: dir}
	c.logger.Warn("unexpected command", zap.Stringer("cmd", h.Command), zap.Stringer("direction", dir))
	c.rec.Record(Event{Kind: EventUnknownCommand, ConnID: c.id, Role: c.role, Header: h, Err: err})
	return err
}

func (c *Conn) unsupported(h ed.Header) error {
	err := fmt.Errorf("%w: %s not supported by this host", ed.ErrUnknownCommand, h.Command)
	c.logger.Warn("unsupported command", zap.Stringer("cmd", h.Command))
	c.rec.Record(Event{Kind: EventUnknownCommand, ConnID: c.id, Role: c.role, Header: h, Err: err})
	return err
}

// Serve host 主循环：接收 -> 分发 -> 写回
// 帧级错误已记录，跳过后继续；传输错误或 ctx 结束时返回
func (c *Conn) Serve(ctx context.Context) error {
	if c.role != RoleHost {
		return ErrWrongRole
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := c.ReceivePacket()
		if err != nil {
			if errors.Is(err, ErrTransportRead) {
				return err
			}
			continue
		}
		if content == nil {
			continue
		}
		if _, err := c.Dispatch(ctx, content); err != nil {
			continue
		}
		if err := c.Flush(); err != nil {
			return err
		}
	}
}

// Request client 发送一条请求并等待同指令、同 session 的响应（单请求在途）
// 校验失败的帧直接返回错误，由调用方决定是否重试
func (c *Conn) Request(ctx context.Context, p ed.Payload) (*ed.Content, error) {
	if c.role != RoleClient {
		return nil, ErrWrongRole
	}
	session := c.session
	c.session++
	if err := c.SendPacket(ed.Content{Unit: c.unit, Session: session, Payload: p}); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := c.ReceivePacket()
		if err != nil {
			if errors.Is(err, ed.ErrUnknownCommand) {
				continue
			}
			return nil, err
		}
		if content == nil {
			continue
		}
		resp, err := c.Dispatch(ctx, content)
		if err != nil {
			continue
		}
		if resp.Command() == p.Command() && resp.Session == session {
			return resp, nil
		}
		// 多为此前超时请求的迟到应答
		c.logger.Warn("ignoring unsolicited response",
			zap.Stringer("cmd", resp.Command()), zap.Uint8("session", resp.Session),
			zap.Stringer("want", p.Command()), zap.Uint8("want_session", session))
	}
}
