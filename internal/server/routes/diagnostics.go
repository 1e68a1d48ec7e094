// Package routes 注册 /-/ 下的诊断接口。
package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/heimdall/heimdall/internal/abi"
	"github.com/heimdall/heimdall/internal/metrics"
)

// ConfigSource 提供当前生效的插件配置，*plugin.Root 满足该接口。
type ConfigSource interface {
	Kind() abi.ContextKind
	Nodes() []string
}

type configPayload struct {
	ContextKind  abi.ContextKind `json:"context_kind"`
	RedisNodes   []string        `json:"redis_nodes"`
	BackendCount int             `json:"backend_count"`
}

// RegisterDiagnosticsRoutes 暴露 /-/config 与 /-/metrics。collector 为 nil 时 /-/metrics 返回 404。
func RegisterDiagnosticsRoutes(app *fiber.App, source ConfigSource, collector *metrics.Collector) {
	if app == nil || source == nil {
		return
	}

	app.Get("/-/config", func(c fiber.Ctx) error {
		nodes := source.Nodes()
		if nodes == nil {
			nodes = []string{}
		}
		return c.JSON(configPayload{
			ContextKind:  source.Kind(),
			RedisNodes:   nodes,
			BackendCount: len(nodes),
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(collector.Handler()))
}
