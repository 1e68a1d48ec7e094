// Package probe 实现启动阶段的连通性自检：解析主机名，失败时回退到固定地址，
// 然后同步发起一次 GET 并记录结果。
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// 默认探测目标。
const (
	DefaultHostname = "httpbin.org"
	DefaultScheme   = "http"
	DefaultPath     = "/"
)

// DefaultFallback 在 DNS 解析失败时使用。
var DefaultFallback = netip.MustParseAddrPort("34.203.186.29:80")

var errNoAddresses = errors.New("resolver returned no addresses")

// Resolver 由 *net.Resolver 满足，测试中可替换。
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupPort(ctx context.Context, network, service string) (int, error)
}

// Doer 由 *fasthttp.Client 满足。
type Doer interface {
	Do(req *fasthttp.Request, resp *fasthttp.Response) error
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Target 描述要探测的主机。
type Target struct {
	Hostname string
	Scheme   string
	Path     string
	Fallback netip.AddrPort
}

// DefaultTarget 返回 httpbin.org 目标。
func DefaultTarget() Target {
	return Target{
		Hostname: DefaultHostname,
		Scheme:   DefaultScheme,
		Path:     DefaultPath,
		Fallback: DefaultFallback,
	}
}

// Options 用于构造 Prober，零值字段会被替换为默认实现。
type Options struct {
	Target   Target
	Resolver Resolver
	Client   Doer
	Logger   logrus.FieldLogger

	// Timeout 为 0 时不设置超时，由底层连接自行决定。
	Timeout time.Duration
}

// Prober 执行一次性的 DNS + GET 自检。
type Prober struct {
	target   Target
	resolver Resolver
	client   Doer
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// Result 只在单次配置调用内使用，不做保留。
type Result struct {
	Address    netip.AddrPort
	Fallback   bool
	URL        string
	StatusCode int
	Reason     string
	Headers    []Header
	Body       string
}

// Header 保持响应中的原始顺序。
type Header struct {
	Name  string
	Value string
}

func New(opts Options) *Prober {
	target := opts.Target
	if target.Hostname == "" {
		target.Hostname = DefaultHostname
	}
	if target.Scheme == "" {
		target.Scheme = DefaultScheme
	}
	if target.Path == "" {
		target.Path = DefaultPath
	}
	if !target.Fallback.IsValid() {
		target.Fallback = DefaultFallback
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	client := opts.Client
	if client == nil {
		client = &fasthttp.Client{Name: "heimdall-probe"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Prober{
		target:   target,
		resolver: resolver,
		client:   client,
		timeout:  opts.Timeout,
		logger:   logger,
	}
}

// Target 返回补全默认值后的探测目标。
func (p *Prober) Target() Target { return p.target }

// Resolve 返回解析结果中的第一个地址；解析失败时返回回退地址和原始错误。
func (p *Prober) Resolve(ctx context.Context) (netip.AddrPort, error) {
	addr, err := p.lookup(ctx)
	if err != nil {
		return p.target.Fallback, err
	}
	return addr, nil
}

func (p *Prober) lookup(ctx context.Context) (netip.AddrPort, error) {
	port, err := p.resolver.LookupPort(ctx, "tcp", p.target.Scheme)
	if err != nil {
		return netip.AddrPort{}, err
	}
	addrs, err := p.resolver.LookupIPAddr(ctx, p.target.Hostname)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, errNoAddresses
	}
	ip, ok := netip.AddrFromSlice(addrs[0].IP)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("unusable address %q", addrs[0].String())
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
}

// Run 完成解析与 GET。DNS 失败只记录日志；GET 失败返回错误，由调用方决定是否中止配置。
func (p *Prober) Run(ctx context.Context) (Result, error) {
	addr, resolveErr := p.Resolve(ctx)
	result := Result{Address: addr, Fallback: resolveErr != nil}
	if resolveErr != nil {
		p.logger.WithFields(logrus.Fields{
			"action":   "probe_resolve",
			"hostname": p.target.Hostname,
			"fallback": addr.String(),
		}).Warnf("nslookup: %v", resolveErr)
	}

	result.URL = fmt.Sprintf("%s://%s%s", p.target.Scheme, addr.String(), p.target.Path)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(result.URL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if p.timeout > 0 {
		req.SetTimeout(p.timeout)
	}
	if err := p.do(ctx, req, resp); err != nil {
		return result, fmt.Errorf("probe GET %s: %w", result.URL, err)
	}

	result.StatusCode = resp.StatusCode()
	result.Reason = string(resp.Header.StatusMessage())
	if result.Reason == "" {
		result.Reason = fasthttp.StatusMessage(result.StatusCode)
	}
	resp.Header.VisitAll(func(key, value []byte) {
		result.Headers = append(result.Headers, Header{Name: string(key), Value: string(value)})
	})
	result.Body = strings.ToValidUTF8(string(resp.Body()), "\uFFFD")

	result.Log(p.logger)
	return result, nil
}

// do 在 ctx 已取消时不发起请求；ctx 带截止时间时以其为 GET 的截止时间。
func (p *Prober) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		return p.client.DoDeadline(req, resp, deadline)
	}
	return p.client.Do(req, resp)
}

// Log 输出状态行、响应头与正文。
func (r Result) Log(logger logrus.FieldLogger) {
	entry := logger.WithFields(logrus.Fields{
		"action":   "probe",
		"address":  r.Address.String(),
		"fallback": r.Fallback,
	})
	entry.Infof("GET %s", r.URL)
	entry.Infof("Status: %d %s", r.StatusCode, r.Reason)

	pairs := make([]string, len(r.Headers))
	for i, h := range r.Headers {
		pairs[i] = h.Name + ": " + h.Value
	}
	entry.Infof("Headers %s", strings.Join(pairs, "; "))
	entry.Info(r.Body)
}
