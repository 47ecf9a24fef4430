// Package device 提供 host 侧的设备身份与通道采样
package device

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// Profile 设备身份描述（YAML）
//
//	name: Test
//	serial: "01 02 03 04"
//	debugVersion: 2.3.1113
//	appVersion: 2.3.1113
//	protocolVersion: 1
//	category: 1
//	channels: 4
type Profile struct {
	Name            string `yaml:"name"`
	Serial          string `yaml:"serial"`
	DebugVersion    string `yaml:"debugVersion"`
	AppVersion      string `yaml:"appVersion"`
	ProtocolVersion uint8  `yaml:"protocolVersion"`
	Category        uint8  `yaml:"category"`
	Channels        uint8  `yaml:"channels"`
}

// Identity 已解析的设备身份，实现 connection.IdentityProvider
type Identity struct {
	version ed.GetVersionResponse
	info    ed.GetInfoResponse
}

// DefaultProfile 未配置时使用的身份
func DefaultProfile() Profile {
	return Profile{
		Name:            "Test",
		Serial:          "01 02 03 04",
		DebugVersion:    "2.3.1113",
		AppVersion:      "2.3.1113",
		ProtocolVersion: 1,
		Category:        1,
		Channels:        4,
	}
}

// LoadProfile 读取 YAML 身份文件，缺省字段取默认值
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read device profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse device profile %s: %w", path, err)
	}
	return p, nil
}

// Identity 校验并转换为协议字段
func (p Profile) Identity() (*Identity, error) {
	serial, err := hex.DecodeString(strings.Join(strings.Fields(p.Serial), ""))
	if err != nil {
		return nil, fmt.Errorf("device serial %q: %w", p.Serial, err)
	}
	if len(p.Name) > ed.MaxFieldLen || len(serial) > ed.MaxFieldLen {
		return nil, fmt.Errorf("device name/serial: %w", ed.ErrFieldTooLong)
	}
	dbg, err := ParseVersion(p.DebugVersion)
	if err != nil {
		return nil, fmt.Errorf("debugVersion: %w", err)
	}
	app, err := ParseVersion(p.AppVersion)
	if err != nil {
		return nil, fmt.Errorf("appVersion: %w", err)
	}
	return &Identity{
		version: ed.GetVersionResponse{Debug: dbg, App: app, Name: p.Name, Serial: serial},
		info:    ed.GetInfoResponse{ProtocolVersion: p.ProtocolVersion, Category: p.Category, Channels: p.Channels},
	}, nil
}

// VersionInfo 返回版本信息（序列号为副本）
func (id *Identity) VersionInfo() ed.GetVersionResponse {
	v := id.version
	v.Serial = append([]byte(nil), v.Serial...)
	return v
}

// DeviceInfo 返回设备类别与通道数
func (id *Identity) DeviceInfo() ed.GetInfoResponse { return id.info }

// ParseVersion 解析 "major.minor.patch"
func ParseVersion(s string) (ed.Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return ed.Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return ed.Version{}, fmt.Errorf("invalid major in %q: %w", s, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return ed.Version{}, fmt.Errorf("invalid minor in %q: %w", s, err)
	}
	patch, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return ed.Version{}, fmt.Errorf("invalid patch in %q: %w", s, err)
	}
	return ed.Version{Major: uint8(major), Minor: uint8(minor), Patch: uint16(patch)}, nil
}
