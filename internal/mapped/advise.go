package mapped

// AccessPattern：madvise 访问模式提示
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
	AccessWillNeed
)
