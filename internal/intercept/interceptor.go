// Package intercept 实现单个 HTTP 交换的拦截状态机：记录头部、按块重组正文、
// 在流结束时解码并输出日志，同时通过属性通道通知宿主投递正文。
package intercept

import (
	"github.com/sirupsen/logrus"

	"github.com/heimdall/heimdall/internal/abi"
	"github.com/heimdall/heimdall/internal/metrics"
)

// Options 控制 Interceptor 的可选行为。
type Options struct {
	Logger  logrus.FieldLogger
	Metrics *metrics.Collector

	// MaxBodyBytes 为单方向正文缓冲上限，0 表示不限制。
	MaxBodyBytes int
}

// flow 保存一个方向的状态与缓冲区，buf 在首个正文回调时才创建。
type flow struct {
	state     State
	buf       []byte
	truncated bool
}

// Interceptor 只观察流量，所有回调都返回 abi.ActionContinue。
// 同一交换的回调由宿主串行投递，因此内部不加锁。
type Interceptor struct {
	id         uint32
	host       abi.Host
	logger     logrus.FieldLogger
	metrics    *metrics.Collector
	maxBody    int
	flows      [2]flow
	violations int
}

// New 创建绑定 exchangeID 的 Interceptor，两个方向的缓冲区均为空。
func New(exchangeID uint32, host abi.Host, opts Options) *Interceptor {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody < 0 {
		maxBody = 0
	}
	opts.Metrics.ExchangeStarted()
	return &Interceptor{
		id:      exchangeID,
		host:    host,
		logger:  logger,
		metrics: opts.Metrics,
		maxBody: maxBody,
	}
}

// ID 返回宿主分配的交换标识。
func (i *Interceptor) ID() uint32 { return i.id }

// State 返回指定方向的当前状态。
func (i *Interceptor) State(dir abi.Direction) State { return i.flows[dir].state }

// Buffered 返回指定方向已累积的正文；尚未收到正文回调时为 nil。
func (i *Interceptor) Buffered(dir abi.Direction) []byte { return i.flows[dir].buf }

// Violations 返回乱序回调的次数。
func (i *Interceptor) Violations() int { return i.violations }

func (i *Interceptor) OnRequestHeaders(headerCount int, endOfStream bool) abi.Action {
	return i.onHeaders(abi.DirectionRequest)
}

func (i *Interceptor) OnRequestBody(chunkSize int, endOfStream bool) abi.Action {
	return i.onBody(abi.DirectionRequest, chunkSize, endOfStream)
}

func (i *Interceptor) OnResponseHeaders(headerCount int, endOfStream bool) abi.Action {
	return i.onHeaders(abi.DirectionResponse)
}

func (i *Interceptor) OnResponseBody(chunkSize int, endOfStream bool) abi.Action {
	return i.onBody(abi.DirectionResponse, chunkSize, endOfStream)
}

// OnDone 在宿主销毁交换时调用，仅关闭状态并输出调试摘要。
func (i *Interceptor) OnDone() {
	i.flows[abi.DirectionRequest].state = StateClosed
	i.flows[abi.DirectionResponse].state = StateClosed
	i.logger.WithFields(logrus.Fields{
		"action":         "exchange_done",
		"exchange_id":    i.id,
		"request_bytes":  len(i.flows[abi.DirectionRequest].buf),
		"response_bytes": len(i.flows[abi.DirectionResponse].buf),
	}).Debug("exchange finished")
}

func (i *Interceptor) onHeaders(dir abi.Direction) abi.Action {
	f := &i.flows[dir]
	if f.state != StateCreated {
		i.outOfOrder(dir, "headers", f.state)
	} else {
		f.state = StateHeadersSeen
	}

	headers, err := i.host.Headers(dir)
	if err != nil {
		i.fields(dir, "headers").WithError(err).Debug("read headers failed")
	}
	for _, h := range headers {
		i.fields(dir, "header").Warnf(headerFormat(dir), i.id, h.Name, h.Value)
	}
	i.metrics.HeadersObserved(dir.String(), len(headers))

	if err := i.host.SetProperty([]string{abi.BodyProperty(dir)}, abi.PropertyTrue); err != nil {
		i.fields(dir, "set_property").WithError(err).Debug("set property failed")
	}
	return abi.ActionContinue
}

func (i *Interceptor) onBody(dir abi.Direction, chunkSize int, endOfStream bool) abi.Action {
	if chunkSize < 0 {
		chunkSize = 0
	}
	f := &i.flows[dir]
	switch f.state {
	case StateCreated, StateClosed:
		i.outOfOrder(dir, "body", f.state)
	}
	if f.buf == nil {
		f.buf = []byte{}
	}
	if f.state != StateClosed {
		f.state = StateBodyAccumulating
	}

	if chunkSize > 0 {
		chunk, err := i.host.Body(dir, 0, chunkSize)
		if err != nil {
			i.fields(dir, "body").WithError(err).Debug("read body chunk failed")
		}
		f.buf = Append(f.buf, i.capChunk(dir, f, chunk))
	}

	if endOfStream {
		f.state = StateClosed
		text, err := DecodeText(f.buf)
		if err != nil {
			i.metrics.DecodeFailed(dir.String())
			return abi.ActionContinue
		}
		i.fields(dir, "body").Warnf("#%s_body %d -> %s", dir, i.id, text)
		i.metrics.BodyLogged(dir.String())
	}
	return abi.ActionContinue
}

// capChunk 按 maxBody 截断 chunk，首次超限时输出一条告警，之后的数据直接丢弃。
func (i *Interceptor) capChunk(dir abi.Direction, f *flow, chunk []byte) []byte {
	if i.maxBody == 0 || len(chunk) == 0 {
		i.metrics.BodyBytes(dir.String(), len(chunk))
		return chunk
	}
	room := i.maxBody - len(f.buf)
	if room >= len(chunk) {
		i.metrics.BodyBytes(dir.String(), len(chunk))
		return chunk
	}
	if room < 0 {
		room = 0
	}
	if !f.truncated {
		f.truncated = true
		i.metrics.BodyTruncated(dir.String())
		i.fields(dir, "body_truncated").WithField("limit", i.maxBody).Warn("body exceeds buffer limit")
	}
	i.metrics.BodyBytes(dir.String(), room)
	return chunk[:room]
}

func (i *Interceptor) outOfOrder(dir abi.Direction, callback string, state State) {
	i.violations++
	i.metrics.OutOfOrder(dir.String())
	i.fields(dir, "callback_out_of_order").WithFields(logrus.Fields{
		"callback": callback,
		"state":    state.String(),
	}).Warn("unexpected callback order")
}

func (i *Interceptor) fields(dir abi.Direction, action string) *logrus.Entry {
	return i.logger.WithFields(logrus.Fields{
		"action":      action,
		"exchange_id": i.id,
		"direction":   dir.String(),
	})
}

// headerFormat 返回日志模板，响应方向使用反向箭头。
func headerFormat(dir abi.Direction) string {
	if dir == abi.DirectionResponse {
		return "#response_header %d <- %s: %s"
	}
	return "#request_header %d -> %s: %s"
}
