package fetch

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
)

// validator：缓存文件对应的远端版本，保存在 <文件>.meta
// 约束：先删除旧的 .meta 再替换数据文件，最后写新的 .meta；中途失败只会导致下次重新下载
type validator struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Size         int64  `json:"size"`
}

func metaPath(p string) string { return p + ".meta" }

func readValidator(p string) (validator, bool) {
	var v validator
	b, err := os.ReadFile(metaPath(p))
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return validator{}, false
	}
	return v, true
}

func writeValidator(p string, v validator) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := metaPath(p) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, metaPath(p))
}

func dropValidator(p string) error {
	if err := os.Remove(metaPath(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
