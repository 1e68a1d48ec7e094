// Package metrics 汇总拦截模块的 Prometheus 指标，nil Collector 表示关闭统计。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heimdall"

// Collector 持有全部指标及其 registry，所有方法在接收者为 nil 时直接返回。
type Collector struct {
	registry *prometheus.Registry

	exchanges      prometheus.Counter
	headers        *prometheus.CounterVec
	bodyBytes      *prometheus.CounterVec
	bodiesLogged   *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	truncations    *prometheus.CounterVec
	outOfOrder     *prometheus.CounterVec
	configures     *prometheus.CounterVec
	probes         *prometheus.CounterVec
	backendNodes   prometheus.Gauge
}

// NewCollector 在 registry 上注册全部指标；registry 为空时新建一个独立 registry。
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		exchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "HTTP exchanges handed to the interceptor.",
		}),
		headers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "headers_total",
			Help:      "Header pairs observed per direction.",
		}, []string{"direction"}),
		bodyBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_bytes_total",
			Help:      "Body bytes buffered per direction.",
		}, []string{"direction"}),
		bodiesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bodies_logged_total",
			Help:      "Complete bodies decoded and logged.",
		}, []string{"direction"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_decode_failures_total",
			Help:      "Bodies skipped because they were not valid UTF-8.",
		}, []string{"direction"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "body_truncated_total",
			Help:      "Bodies that hit the buffered size cap.",
		}, []string{"direction"}),
		outOfOrder: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_out_of_order_total",
			Help:      "Host callbacks delivered outside the expected order.",
		}, []string{"direction"}),
		configures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configure_total",
			Help:      "Configuration pushes by result.",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_total",
			Help:      "Startup probe runs by outcome.",
		}, []string{"outcome"}),
		backendNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_nodes",
			Help:      "Backend nodes in the active configuration.",
		}),
	}

	registry.MustRegister(
		c.exchanges,
		c.headers,
		c.bodyBytes,
		c.bodiesLogged,
		c.decodeFailures,
		c.truncations,
		c.outOfOrder,
		c.configures,
		c.probes,
		c.backendNodes,
	)
	return c
}

// Registry 返回底层 registry，测试与 /-/metrics 共用。
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler 暴露 Prometheus 文本格式。
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (c *Collector) ExchangeStarted() {
	if c == nil {
		return
	}
	c.exchanges.Inc()
}

func (c *Collector) HeadersObserved(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.headers.WithLabelValues(direction).Add(float64(n))
}

func (c *Collector) BodyBytes(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.bodyBytes.WithLabelValues(direction).Add(float64(n))
}

func (c *Collector) BodyLogged(direction string) {
	if c == nil {
		return
	}
	c.bodiesLogged.WithLabelValues(direction).Inc()
}

func (c *Collector) DecodeFailed(direction string) {
	if c == nil {
		return
	}
	c.decodeFailures.WithLabelValues(direction).Inc()
}

func (c *Collector) BodyTruncated(direction string) {
	if c == nil {
		return
	}
	c.truncations.WithLabelValues(direction).Inc()
}

func (c *Collector) OutOfOrder(direction string) {
	if c == nil {
		return
	}
	c.outOfOrder.WithLabelValues(direction).Inc()
}

// Configured 记录一次配置推送结果，result 取 ok / failed / skipped。
func (c *Collector) Configured(result string) {
	if c == nil {
		return
	}
	c.configures.WithLabelValues(result).Inc()
}

// Probed 记录探测结果，outcome 取 ok / fallback / failed。
func (c *Collector) Probed(outcome string) {
	if c == nil {
		return
	}
	c.probes.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetBackendNodes(n int) {
	if c == nil {
		return
	}
	c.backendNodes.Set(float64(n))
}
