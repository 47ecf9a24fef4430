// Package transport 调试器侧的链路：TCP 与串口
package transport

import (
	"context"
	"fmt"
	"io"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
)

// timeoutError 读超时，满足 Timeout() bool 约定，上层视为暂无数据
type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// ErrReadTimeout 串口空闲读返回的超时错误
var ErrReadTimeout error = timeoutError{}

// Open 按配置打开链路
func Open(ctx context.Context, cfg cfgpkg.ClientConfig) (io.ReadWriteCloser, error) {
	switch cfg.Transport {
	case "", "tcp":
		return DialTCP(ctx, cfg.Addr, cfg.DialTimeout, cfg.ReadTimeout)
	case "serial":
		return OpenSerial(cfg.Serial, cfg.ReadTimeout)
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
