package pcindex

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Slice：一个邮编在 points 数组中的连续区间 [Offset, Offset+Count)
// 约束：内存布局固定为 2×uint32（8 字节），与 slices 文件记录一致
type Slice struct {
	Offset uint32
	Count  uint32
}

func (s Slice) End() uint64 { return uint64(s.Offset) + uint64(s.Count) }

// Paths：索引的三个文件
type Paths struct {
	BoundingBoxes string
	Points        string
	Slices        string
}

// PathsIn：目录下的默认文件名
func PathsIn(dir string) Paths {
	return Paths{
		BoundingBoxes: filepath.Join(dir, "bounding_boxes.bin"),
		Points:        filepath.Join(dir, "points.bin"),
		Slices:        filepath.Join(dir, "slices.bin"),
	}
}

func (p Paths) All() []string { return []string{p.BoundingBoxes, p.Points, p.Slices} }

// 索引目录布局：每次构建写入 dir/<generation>/，三个文件全部落盘后把 dir/current 链接原子切换到新一代。
// 读取方只通过 current 定位，任何时刻看到的三个文件都来自同一次构建。
const currentLink = "current"

// 文档注释：解析当前一代
// 返回：current 链接存在时返回其指向目录下的文件与一代的名字；否则退回 dir 下的平铺文件，名字为空
// 约束：链接只读取一次，之后即使被切换，返回的路径仍属于同一代
func Current(dir string) (Paths, string) {
	target, err := os.Readlink(filepath.Join(dir, currentLink))
	if err != nil {
		return PathsIn(dir), ""
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}
	return PathsIn(target), filepath.Base(target)
}

// 文档注释：把 dir/current 指向 dir/gen
// 背景：先建临时链接再 rename 覆盖，rename 在同一文件系统内是原子的
func SwitchCurrent(dir, gen string) error {
	if err := syncDir(filepath.Join(dir, gen)); err != nil {
		return err
	}
	tmp := filepath.Join(dir, currentLink+".tmp")
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Symlink(gen, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, currentLink)); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	err = d.Sync()
	if cerr := d.Close(); err == nil {
		err = cerr
	}
	return err
}
