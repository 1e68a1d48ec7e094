// Package plugin 提供进程级的 Root 控制器：持有配置存储、在配置阶段驱动启动探测，
// 并为每个 HTTP 交换创建 Interceptor。
package plugin

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/heimdall/heimdall/internal/abi"
	"github.com/heimdall/heimdall/internal/intercept"
	"github.com/heimdall/heimdall/internal/metrics"
	"github.com/heimdall/heimdall/internal/probe"
)

// ErrPayloadNotText 表示配置负载不是合法 UTF-8 文本。
var ErrPayloadNotText = errors.New("plugin configuration is not valid utf-8")

// Prober 抽象启动探测，*probe.Prober 满足该接口。
type Prober interface {
	Run(ctx context.Context) (probe.Result, error)
}

// Options 汇总 Root 的依赖与可调行为。
type Options struct {
	Logger  *logrus.Logger
	Metrics *metrics.Collector
	Prober  Prober

	// ProbeFailFast 为 true 时 GET 失败会中止配置；默认仅记录日志。
	ProbeFailFast bool

	// MaxBodyBytes 透传给每个 Interceptor，0 表示不限制。
	MaxBodyBytes int
}

// Root 是进程内唯一的控制器，配置只通过它读取。
type Root struct {
	logger   *logrus.Logger
	metrics  *metrics.Collector
	prober   Prober
	failFast bool
	maxBody  int
	store    *Store
}

// NewRoot 校验依赖并返回持有空配置的 Root。
func NewRoot(opts Options) (*Root, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if opts.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("invalid max body bytes: %d", opts.MaxBodyBytes)
	}
	return &Root{
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		prober:   opts.Prober,
		failFast: opts.ProbeFailFast,
		maxBody:  opts.MaxBodyBytes,
		store:    NewStore(),
	}, nil
}

// Kind 声明本模块按 HTTP 交换接收回调。
func (r *Root) Kind() abi.ContextKind {
	return abi.ContextKindHTTPExchange
}

// Config 返回当前配置的副本。
func (r *Root) Config() Conf {
	return r.store.Load()
}

// Nodes 返回当前已知的后端节点。
func (r *Root) Nodes() []string {
	return r.store.Load().RedisNodes
}

// Configure 依次执行启动探测与配置替换。payload 为空视为宿主未提供配置，保留现有值。
// 返回的 error 表示本次配置被拒绝，宿主应视为模块拒绝启动或拒绝更新。
func (r *Root) Configure(ctx context.Context, payload []byte) error {
	if err := r.runProbe(ctx); err != nil {
		r.metrics.Configured("failed")
		return err
	}

	if len(payload) == 0 {
		r.logger.WithField("action", "on_configure").Debug("no plugin configuration supplied")
		r.metrics.Configured("skipped")
		return nil
	}

	entry := r.logger.WithField("action", "on_configure")
	if !utf8.Valid(payload) {
		r.metrics.Configured("failed")
		return ErrPayloadNotText
	}
	entry.Warnf("#on_configure %s", payload)

	conf, err := ParseConf(payload)
	if err != nil {
		r.metrics.Configured("failed")
		return err
	}
	r.store.Replace(conf)
	r.metrics.SetBackendNodes(len(conf.RedisNodes))
	r.metrics.Configured("ok")
	entry.Warnf("#on_configure %s", conf)
	return nil
}

// OnPluginStart 适配只接受布尔返回值的宿主。
func (r *Root) OnPluginStart(ctx context.Context, payload []byte) bool {
	if err := r.Configure(ctx, payload); err != nil {
		r.logger.WithError(err).WithField("action", "on_configure").Error("configuration rejected")
		return false
	}
	return true
}

func (r *Root) runProbe(ctx context.Context) error {
	result, err := r.prober.Run(ctx)
	switch {
	case err != nil:
		r.metrics.Probed("failed")
		if r.failFast {
			return fmt.Errorf("startup probe: %w", err)
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":  "probe",
			"address": result.Address.String(),
		}).Warn("startup probe failed, continuing")
	case result.Fallback:
		r.metrics.Probed("fallback")
	default:
		r.metrics.Probed("ok")
	}
	return nil
}

// NewExchange 为 exchangeID 创建新的 Interceptor，总是成功。
func (r *Root) NewExchange(exchangeID uint32, host abi.Host) *intercept.Interceptor {
	return intercept.New(exchangeID, host, intercept.Options{
		Logger:       r.logger,
		Metrics:      r.metrics,
		MaxBodyBytes: r.maxBody,
	})
}
