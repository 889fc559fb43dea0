//go:build !unix

package mapped

import (
	"io"
	"os"
)

// 非 unix 平台退化为一次性读入内存，语义保持只读
func mmap(f *os.File, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func munmap([]byte) error { return nil }

func advise([]byte, AccessPattern) error { return nil }
