// 包 postcode：荷兰邮编（4 位数字 + 2 位大写字母）与 24 位稠密下标之间的双向映射
package postcode

import (
	"errors"
	"fmt"
)

// Slots：下标空间大小（2^24），索引文件中的稠密数组均按此长度分配
const Slots = 1 << 24

// Code：邮编的稠密下标，仅低 24 位有效
// 约束：排序按数值进行，等价于 (数字, 字母1, 字母2) 的字典序
type Code uint32

var (
	ErrInvalidLength  = errors.New("postcode: invalid length")
	ErrInvalidDigits  = errors.New("postcode: invalid digits")
	ErrInvalidLetters = errors.New("postcode: invalid letters")
)

// FormatError：邮编文本不合法
// 背景：上游数据存在脏记录，解析失败只跳过该记录；Input 保留原文便于日志定位
type FormatError struct {
	Input string
	Err   error
}

func (e *FormatError) Error() string { return fmt.Sprintf("%v: %q", e.Err, e.Input) }

func (e *FormatError) Unwrap() error { return e.Err }

// 文档注释：编码
// 约束：digits <= 9999，字母为 'A'..'Z'；此处不做校验以保持热路径无分支，由调用方保证
func Encode(digits uint16, letter1, letter2 byte) Code {
	return Code(uint32(digits)<<10 | uint32(letter1-'A')<<5 | uint32(letter2-'A'))
}

// 文档注释：解码（Encode 的逆运算）
func Decode(c Code) (digits uint16, letter1, letter2 byte) {
	v := uint32(c)
	digits = uint16(v >> 10)
	letter1 = byte((v>>5)&0x1f) + 'A'
	letter2 = byte(v&0x1f) + 'A'
	return digits, letter1, letter2
}

// 文档注释：解析 6 字符邮编文本，如 "8628ET"
// 返回：长度不为 6 返回 ErrInvalidLength；前 4 位非数字返回 ErrInvalidDigits；后 2 位非大写字母返回 ErrInvalidLetters
func Parse(s string) (Code, error) {
	if len(s) != 6 {
		return 0, &FormatError{Input: s, Err: ErrInvalidLength}
	}
	var digits uint16
	for i := 0; i < 4; i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return 0, &FormatError{Input: s, Err: ErrInvalidDigits}
		}
		digits = digits*10 + uint16(ch-'0')
	}
	l1, l2 := s[4], s[5]
	if l1 < 'A' || l1 > 'Z' || l2 < 'A' || l2 > 'Z' {
		return 0, &FormatError{Input: s, Err: ErrInvalidLetters}
	}
	return Encode(digits, l1, l2), nil
}

// MustParse：仅用于常量与测试
func MustParse(s string) Code {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String：规范 6 字符表示，数字部分左侧补零
func (c Code) String() string {
	d, l1, l2 := Decode(c)
	return fmt.Sprintf("%04d%c%c", d, l1, l2)
}

// Index：作为稠密数组下标使用
func (c Code) Index() int { return int(c) }

// FromIndex：由数组下标还原邮编
func FromIndex(i int) Code { return Code(uint32(i) & (Slots - 1)) }

// Bytes：3 字节小端存储形式
func (c Code) Bytes() [3]byte {
	v := uint32(c)
	return [3]byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

func FromBytes(b [3]byte) Code {
	return Code(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16)
}

// MarshalText：JSON 输出使用规范文本
func (c Code) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Code) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
