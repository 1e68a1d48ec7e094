// Package proxy 承担宿主角色：把每个 HTTP 交换交给拦截器，按属性决定是否投递正文，
// 并将请求转发到单一上游。
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/heimdall/heimdall/internal/abi"
	"github.com/heimdall/heimdall/internal/intercept"
	"github.com/heimdall/heimdall/internal/logging"
	"github.com/heimdall/heimdall/internal/server"
)

// DefaultChunkSize 是未配置时的正文分块大小。
const DefaultChunkSize = 16 * 1024

// ExchangeFactory 为每个交换创建拦截器，*plugin.Root 满足该接口。
type ExchangeFactory interface {
	NewExchange(exchangeID uint32, host abi.Host) *intercept.Interceptor
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Client   *http.Client
	Upstream string
	Factory  ExchangeFactory
	Logger   *logrus.Logger

	// ChunkSize 控制正文回调的块大小，0 使用 DefaultChunkSize。
	ChunkSize int
}

// Handler 实现 server.ProxyHandler。
type Handler struct {
	client    *http.Client
	upstream  *url.URL
	factory   ExchangeFactory
	logger    *logrus.Logger
	chunkSize int
	nextID    atomic.Uint32
}

// NewHandler 校验依赖并解析上游地址。
func NewHandler(opts Options) (*Handler, error) {
	if opts.Factory == nil {
		return nil, errors.New("exchange factory is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	base, err := url.Parse(opts.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream must be an absolute URL: %q", opts.Upstream)
	}
	client := opts.Client
	if client == nil {
		client = server.NewUpstreamClient(nil)
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Handler{
		client:    client,
		upstream:  base,
		factory:   opts.Factory,
		logger:    opts.Logger,
		chunkSize: chunkSize,
	}, nil
}

// Handle 按固定顺序驱动拦截器：请求头、请求正文、响应头、响应正文，最后 OnDone。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	id := h.nextID.Add(1)
	fields := logging.ExchangeFields(id, server.RequestID(c), c.Method(), string(c.Request().URI().Path()))

	host := newExchangeHost()
	host.headers[abi.DirectionRequest] = requestHeaderPairs(c)
	ex := h.factory.NewExchange(id, host)
	defer ex.OnDone()

	body := append([]byte(nil), c.Request().Body()...)
	ex.OnRequestHeaders(len(host.headers[abi.DirectionRequest]), len(body) == 0)
	if len(body) > 0 && host.bodyEnabled(abi.DirectionRequest) {
		h.deliverRequestBody(ex, host, body)
	}

	req, err := h.buildUpstreamRequest(c, body)
	if err != nil {
		return h.fail(c, fields, fiber.StatusBadGateway, "upstream_request_invalid", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return h.fail(c, fields, fiber.StatusBadGateway, "upstream_failed", err)
	}
	defer resp.Body.Close()

	host.headers[abi.DirectionResponse] = responseHeaderPairs(resp)
	noBody := c.Method() == http.MethodHead || resp.ContentLength == 0
	ex.OnResponseHeaders(len(host.headers[abi.DirectionResponse]), noBody)

	copyResponseHeaders(c, resp.Header)
	c.Status(resp.StatusCode)

	var streamed int
	if !noBody {
		streamed, err = h.streamResponseBody(c, ex, host, resp.Body)
		if err != nil {
			return h.fail(c, fields, fiber.StatusBadGateway, "upstream_stream_failed", err)
		}
	}

	fields["action"] = "proxy"
	fields["upstream_status"] = resp.StatusCode
	fields["response_bytes"] = streamed
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	h.logger.WithFields(fields).Info("exchange_complete")
	return nil
}

// deliverRequestBody 将已完整读取的请求正文按 chunkSize 切块投递，最后一块携带 endOfStream。
func (h *Handler) deliverRequestBody(ex *intercept.Interceptor, host *exchangeHost, body []byte) {
	for offset := 0; offset < len(body); offset += h.chunkSize {
		end := offset + h.chunkSize
		if end > len(body) {
			end = len(body)
		}
		host.setChunk(abi.DirectionRequest, body[offset:end])
		ex.OnRequestBody(end-offset, end == len(body))
	}
	host.setChunk(abi.DirectionRequest, nil)
}

// streamResponseBody 边读上游边投递并写回下游。EOF 可能伴随空块，此时投递 size 为 0 的结束回调。
func (h *Handler) streamResponseBody(c fiber.Ctx, ex *intercept.Interceptor, host *exchangeHost, src io.Reader) (int, error) {
	deliver := host.bodyEnabled(abi.DirectionResponse)
	buf := make([]byte, h.chunkSize)
	total := 0
	for {
		n, err := io.ReadFull(src, buf)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return total, err
		}
		if n > 0 || eof {
			chunk := buf[:n]
			host.setChunk(abi.DirectionResponse, chunk)
			if deliver {
				ex.OnResponseBody(n, eof)
			}
			c.Response().AppendBody(chunk)
			total += n
		}
		if eof {
			host.setChunk(abi.DirectionResponse, nil)
			return total, nil
		}
	}
}

func (h *Handler) buildUpstreamRequest(c fiber.Ctx, body []byte) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	target := h.resolveUpstreamURL(c)
	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), reader)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Host = target.Host
	req.Header.Set("Host", target.Host)
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	if reqID := server.RequestID(c); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	return req, nil
}

func (h *Handler) resolveUpstreamURL(c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := path.Clean("/" + string(uri.Path()))
	if strings.HasSuffix(string(uri.Path()), "/") && clean != "/" {
		clean += "/"
	}
	relative := &url.URL{Path: strings.TrimPrefix(clean, "/")}
	if q := uri.QueryString(); len(q) > 0 {
		relative.RawQuery = string(q)
	}
	base := *h.upstream
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(relative)
}

func (h *Handler) fail(c fiber.Ctx, fields logrus.Fields, status int, code string, err error) error {
	fields["action"] = "proxy"
	fields["error"] = err.Error()
	h.logger.WithFields(fields).Error("proxy_failed")
	c.Response().ResetBody()
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 透传上游响应头；Content-Length 由 fasthttp 按实际正文重算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
