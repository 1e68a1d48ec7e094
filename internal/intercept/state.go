package intercept

// State 描述单个方向上的回调进度。
type State int

const (
	StateCreated State = iota
	StateHeadersSeen
	StateBodyAccumulating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateHeadersSeen:
		return "headers_seen"
	case StateBodyAccumulating:
		return "body_accumulating"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
