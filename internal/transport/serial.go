package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
)

// Serial 串口链路
// 设置了读超时的串口在无数据时返回 (0, io.EOF)，这里改为超时错误，避免被当作断开
type Serial struct {
	port io.ReadWriteCloser
}

// OpenSerial 打开串口
func OpenSerial(cfg cfgpkg.SerialConfig, readTimeout time.Duration) (*Serial, error) {
	if cfg.Baud <= 0 {
		cfg.Baud = 115200
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Name, err)
	}
	return &Serial{port: port}, nil
}

func (s *Serial) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (s *Serial) Write(p []byte) (int, error) { return s.port.Write(p) }

// Close 关闭串口
func (s *Serial) Close() error { return s.port.Close() }
