package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heimdall/heimdall/internal/abi"
	"github.com/heimdall/heimdall/internal/metrics"
)

type staticSource struct {
	nodes []string
}

func (s staticSource) Kind() abi.ContextKind { return abi.ContextKindHTTPExchange }
func (s staticSource) Nodes() []string { return s.nodes }

func TestConfigRouteReportsNodes(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticSource{nodes: []string{"r1:6379"}}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/config", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var payload configPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.ContextKind != "HTTP-exchange" || payload.BackendCount != 1 || payload.RedisNodes[0] != "r1:6379" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestConfigRouteEmptyNodesIsArray(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticSource{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/config", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"redis_nodes":[]`) {
		t.Fatalf("empty node list should encode as array, got %s", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	collector.SetBackendNodes(3)

	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticSource{}, collector)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "heimdall_backend_nodes 3") {
		t.Fatalf("unexpected metrics response %d:\n%s", resp.StatusCode, body)
	}
}

func TestMetricsRouteDisabled(t *testing.T) {
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, staticSource{}, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 without collector, got %d", resp.StatusCode)
	}
}
