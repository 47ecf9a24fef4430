package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Options 由配置构造管道时使用的参数
type Options struct {
	Logger    *zap.Logger
	ZstdLevel int
	ChunkMax  int
}

// Build 按名称顺序构造管道：nop | inspect | limit | zstd | lz4
func Build(names []string, opts Options) (*Pipeline, error) {
	p := New()
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "", "nop":
			p.Append(Nop{})
		case "inspect":
			p.Append(NewInspector(opts.Logger))
		case "limit":
			p.Append(ChunkLimit{Max: opts.ChunkMax})
		case "zstd":
			z, err := NewZstd(opts.ZstdLevel)
			if err != nil {
				return nil, err
			}
			p.Append(z)
		case "lz4":
			p.Append(NewLZ4())
		default:
			return nil, fmt.Errorf("unknown pipeline stage %q", raw)
		}
	}
	return p, nil
}
