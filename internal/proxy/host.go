package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/heimdall/heimdall/internal/abi"
)

var errBodyRange = errors.New("body range out of bounds")

// exchangeHost 是单个交换的 abi.Host 实现：保存两个方向的头部快照、
// 当前投递的正文块以及拦截器写入的属性。只在处理该交换的 goroutine 内使用。
type exchangeHost struct {
	headers [2][]abi.HeaderPair
	chunks  [2][]byte
	props   map[string][]byte
}

func newExchangeHost() *exchangeHost {
	return &exchangeHost{props: make(map[string][]byte)}
}

func (h *exchangeHost) Headers(dir abi.Direction) ([]abi.HeaderPair, error) {
	if dir != abi.DirectionRequest && dir != abi.DirectionResponse {
		return nil, fmt.Errorf("unknown direction %d", dir)
	}
	out := make([]abi.HeaderPair, len(h.headers[dir]))
	copy(out, h.headers[dir])
	return out, nil
}

// Body 返回当前块中 [start, start+size) 的副本，size 超出时截到块尾。
func (h *exchangeHost) Body(dir abi.Direction, start, size int) ([]byte, error) {
	if dir != abi.DirectionRequest && dir != abi.DirectionResponse {
		return nil, fmt.Errorf("unknown direction %d", dir)
	}
	chunk := h.chunks[dir]
	if start < 0 || size < 0 || start > len(chunk) {
		return nil, fmt.Errorf("%w: start=%d size=%d len=%d", errBodyRange, start, size, len(chunk))
	}
	end := start + size
	if end > len(chunk) {
		end = len(chunk)
	}
	return append([]byte(nil), chunk[start:end]...), nil
}

func (h *exchangeHost) SetProperty(path []string, value []byte) error {
	if len(path) == 0 {
		return errors.New("empty property path")
	}
	h.props[strings.Join(path, ".")] = append([]byte(nil), value...)
	return nil
}

// bodyEnabled 判断拦截器是否请求投递 dir 方向的正文。
func (h *exchangeHost) bodyEnabled(dir abi.Direction) bool {
	return string(h.props[abi.BodyProperty(dir)]) == string(abi.PropertyTrue)
}

func (h *exchangeHost) setChunk(dir abi.Direction, chunk []byte) {
	h.chunks[dir] = chunk
}

// requestHeaderPairs 按到达顺序导出请求头，伪头部在前，名称统一小写。
func requestHeaderPairs(c fiber.Ctx) []abi.HeaderPair {
	req := c.Request()
	pairs := []abi.HeaderPair{
		{Name: ":authority", Value: string(req.Host())},
		{Name: ":path", Value: string(req.RequestURI())},
		{Name: ":method", Value: string(req.Header.Method())},
		{Name: ":scheme", Value: c.Scheme()},
	}
	req.Header.VisitAll(func(key, value []byte) {
		name := strings.ToLower(string(key))
		if name == "host" {
			return
		}
		pairs = append(pairs, abi.HeaderPair{Name: name, Value: string(value)})
	})
	return pairs
}

// responseHeaderPairs 导出上游响应头；http.Header 无序，按名称排序保证输出稳定。
func responseHeaderPairs(resp *http.Response) []abi.HeaderPair {
	keys := make([]string, 0, len(resp.Header))
	for key := range resp.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := []abi.HeaderPair{{Name: ":status", Value: strconv.Itoa(resp.StatusCode)}}
	for _, key := range keys {
		name := strings.ToLower(key)
		for _, value := range resp.Header[key] {
			pairs = append(pairs, abi.HeaderPair{Name: name, Value: value})
		}
	}
	return pairs
}
