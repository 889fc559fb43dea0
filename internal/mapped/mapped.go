// 包 mapped：把定长记录文件映射为只读切片（零拷贝）
// 背景：索引文件体积在数百 MB 级，打开时不读取数据，仅建立映射，由缺页中断按需加载。
// 约束：记录类型必须是定长、无指针的纯数据结构；写入方与读取方共享同一类型定义，且运行在字节序一致的平台，文件没有头部与版本号。
package mapped

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

var ErrMisaligned = errors.New("mapped: file size is not a multiple of record size")

// Array：文件支撑的只读记录数组
// 约束：Slice 返回的切片直接引用映射区，Close 之后不可再访问
type Array[T any] struct {
	mu   sync.Mutex
	data []byte
	recs []T
	f    *os.File
}

// 文档注释：打开并映射文件
// 返回：文件不存在或映射失败返回底层错误；文件长度不是记录大小整数倍返回 ErrMisaligned
func Open[T any](path string) (*Array[T], error) {
	size := recordSize[T]()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	n := fi.Size()
	if n%int64(size) != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s (%d bytes, record %d)", ErrMisaligned, path, n, size)
	}
	a := &Array[T]{f: f}
	if n == 0 {
		return a, nil
	}
	data, err := mmap(f, int(n))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapped: mmap %s: %w", path, err)
	}
	a.data = data
	a.recs = unsafe.Slice((*T)(unsafe.Pointer(&data[0])), int(n)/size)
	return a, nil
}

// Slice：映射区的记录视图，长度为 文件大小 / 记录大小
func (a *Array[T]) Slice() []T {
	if a == nil {
		return nil
	}
	return a.recs
}

func (a *Array[T]) Len() int { return len(a.Slice()) }

// Advise：向内核提示访问模式，失败不影响正确性
func (a *Array[T]) Advise(p AccessPattern) error {
	if a == nil || len(a.data) == 0 {
		return nil
	}
	return advise(a.data, p)
}

// Close：解除映射并关闭文件，可重复调用
func (a *Array[T]) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.data != nil {
		err = munmap(a.data)
		a.data = nil
		a.recs = nil
	}
	if a.f != nil {
		if cerr := a.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		a.f = nil
	}
	return err
}

// 文档注释：把记录原样写入文件
// 背景：先写临时文件并 fsync，再 rename 覆盖目标，读取方不会看到写了一半的文件
// 约束：无头部、无压缩、无校验；字节内容即内存表示
func Create[T any](path string, data []T) error {
	st, err := Stage(path, data)
	if err != nil {
		return err
	}
	return st.Commit()
}

// Staged：已落盘但尚未替换目标的临时文件
type Staged struct {
	path string
	tmp  string
}

// 文档注释：写出 path.tmp 并 fsync，不触碰 path
// 背景：多个文件需要一起替换时，先全部 Stage，全部成功后再逐个 Commit
func Stage[T any](path string, data []T) (*Staged, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		raw := unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*recordSize[T]())
		if _, err := f.Write(raw); err != nil {
			f.Close()
			os.Remove(tmp)
			return nil, err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return &Staged{path: path, tmp: tmp}, nil
}

// Commit：rename 临时文件覆盖目标
func (s *Staged) Commit() error { return os.Rename(s.tmp, s.path) }

// Discard：删除临时文件，目标保持不变
func (s *Staged) Discard() error { return os.Remove(s.tmp) }

func recordSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}
