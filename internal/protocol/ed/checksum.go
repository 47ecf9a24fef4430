package ed

import "github.com/sigurn/crc8"

// Params CRC-8 算法参数（多项式、初值、输入/输出反转、结果异或）
type Params struct {
	Name   string
	Poly   uint8
	Init   uint8
	RefIn  bool
	RefOut bool
	XorOut uint8
}

// CRC8Maxim 协议使用的 CRC-8/MAXIM：poly=0x31 init=0x00 refin=refout=true
var CRC8Maxim = Params{Name: "CRC-8/MAXIM", Poly: 0x31, Init: 0x00, RefIn: true, RefOut: true, XorOut: 0x00}

// Checksum 按固定参数计算 CRC-8，构造后只读，可并发使用
type Checksum struct {
	table *crc8.Table
}

// NewChecksum 根据参数预生成查表
func NewChecksum(p Params) *Checksum {
	return &Checksum{table: crc8.MakeTable(crc8.Params{
		Poly:   p.Poly,
		Init:   p.Init,
		RefIn:  p.RefIn,
		RefOut: p.RefOut,
		XorOut: p.XorOut,
		Name:   p.Name,
	})}
}

// Compute 计算数据的校验值
func (c *Checksum) Compute(data []byte) uint8 {
	return crc8.Checksum(data, c.table)
}

var defaultChecksum = NewChecksum(CRC8Maxim)

// CalculateChecksum 使用协议默认算法计算内容区校验值
// 覆盖范围：unit..payload，不包含 STX、校验字节与 ETX
func CalculateChecksum(content []byte) uint8 {
	return defaultChecksum.Compute(content)
}
