package builder

import (
	"errors"
	"fmt"
)

// ErrTooManyPoints：匹配点数超出 uint32 偏移可寻址范围
var ErrTooManyPoints = errors.New("builder: too many points for 32-bit offsets")

// BuildError：构建在某一阶段失败，此时不会写出任何索引文件
type BuildError struct {
	Phase string
	Err   error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build %s: %v", e.Phase, e.Err) }

func (e *BuildError) Unwrap() error { return e.Err }

const (
	PhasePostcodes  = "ingest_postcodes"
	PhaseLocations  = "ingest_locations"
	PhaseAccumulate = "accumulate"
	PhaseWrite      = "write"
)
