package registers

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// RedisStore 以单个 Redis 字符串保存寄存器空间，SETRANGE/GETRANGE 按偏移读写
// 多个 host 进程可共享同一寄存器镜像
type RedisStore struct {
	client redis.UniversalClient
	key    string
	size   uint32
	owned  bool // 由 OpenRedis 创建，Close 时关闭连接
}

// OpenRedis 按配置连接 Redis 并创建寄存器存储，连不上时返回错误
func OpenRedis(ctx context.Context, rc cfgpkg.RedisConfig, key string, size uint32) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		DialTimeout:  rc.DialTimeout,
		ReadTimeout:  rc.ReadTimeout,
		WriteTimeout: rc.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", rc.Addr, err)
	}

	s := NewRedisStore(client, key, size)
	s.owned = true
	return s, nil
}

// Close 关闭 OpenRedis 建立的连接；外部传入的客户端由调用方管理
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// NewRedisStore 创建 Redis 寄存器存储
func NewRedisStore(client redis.UniversalClient, key string, size uint32) *RedisStore {
	if size == 0 {
		size = DefaultSize
	}
	if key == "" {
		key = "edlink:registers"
	}
	return &RedisStore{client: client, key: key, size: size}
}

// Size 寄存器空间大小
func (s *RedisStore) Size() uint32 { return s.size }

// WriteRegister 写入寄存器；Redis 访问失败时返回 error，由上层按 WriteFault 回复
func (s *RedisStore) WriteRegister(ctx context.Context, offset uint32, control uint8, data []byte) (ed.WriteResult, error) {
	if !inRange(offset, len(data), s.size) {
		return ed.WriteInvalidOffset, nil
	}
	if err := s.client.SetRange(ctx, s.key, int64(offset), string(data)).Err(); err != nil {
		return ed.WriteFault, fmt.Errorf("setrange %s@%d: %w", s.key, offset, err)
	}
	if control&ControlVerify != 0 {
		got, err := s.ReadRegister(ctx, offset, len(data))
		if err != nil {
			return ed.WriteFault, err
		}
		if !bytes.Equal(got, data) {
			return ed.WriteFault, nil
		}
	}
	return ed.WriteOK, nil
}

// ReadRegister 读取寄存器区间，未写入过的部分按 0 填充
func (s *RedisStore) ReadRegister(ctx context.Context, offset uint32, n int) ([]byte, error) {
	if !inRange(offset, n, s.size) {
		return nil, ErrOutOfRange
	}
	out := make([]byte, n)
	if n == 0 {
		return out, nil
	}
	v, err := s.client.GetRange(ctx, s.key, int64(offset), int64(offset)+int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("getrange %s@%d: %w", s.key, offset, err)
	}
	copy(out, v)
	return out, nil
}

// ImageStatus 寄存器镜像与连接池状态
type ImageStatus struct {
	Key       string `json:"key"`
	Bytes     int64  `json:"bytes"` // 镜像已写入的长度
	Size      uint32 `json:"size"`  // 配置的寄存器空间
	PoolTotal uint32 `json:"pool_total"`
	PoolIdle  uint32 `json:"pool_idle"`
	Timeouts  uint32 `json:"timeouts"`
}

// Oversized 镜像比本进程配置的空间大，说明共享该 key 的其它 host 使用了不同的 size
func (st ImageStatus) Oversized() bool { return st.Bytes > int64(st.Size) }

// Probe 检查 Redis 可达并读取镜像长度
func (s *RedisStore) Probe(ctx context.Context) (ImageStatus, error) {
	st := ImageStatus{Key: s.key, Size: s.size}
	n, err := s.client.StrLen(ctx, s.key).Result()
	if err != nil {
		return st, fmt.Errorf("strlen %s: %w", s.key, err)
	}
	st.Bytes = n
	if ps := s.client.PoolStats(); ps != nil {
		st.PoolTotal, st.PoolIdle, st.Timeouts = ps.TotalConns, ps.IdleConns, ps.Timeouts
	}
	return st, nil
}
