package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/pkg/config"
)

const chain = `
nodes:
  - {id: loc-tw, label: Location, properties: {country: TW}}
  - {id: loc-de, label: Location, properties: {country: DE}}
  - {id: s1, label: Supplier}
  - {id: s2, label: Supplier}
  - {id: c1, label: Component, properties: {critical: true}}
  - {id: c2, label: Component}
  - {id: p1, label: Product, properties: {revenue: 400000}}
  - {id: p2, label: Product, properties: {revenue: 200000}}
edges:
  - {source: s1, target: loc-tw, type: LOCATED_IN}
  - {source: s2, target: loc-de, type: LOCATED_IN}
  - {source: s1, target: c1, type: SUPPLIES}
  - {source: s1, target: c2, type: SUPPLIES}
  - {source: s2, target: c2, type: SUPPLIES}
  - {source: c1, target: p1, type: PART_OF}
  - {source: c2, target: p2, type: PART_OF}
`

const events = `[
  {"id": "ev1", "event_type": "earthquake", "location": "loc-tw", "severity": "High", "confidence": 0.9},
  {"id": "ev2", "event_type": "strike", "location": "loc-de", "severity": "Low", "confidence": 0.5},
  {"id": "ev3", "event_type": "strike", "location": "loc-de", "severity": "Extreme", "confidence": 0.5}
]`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	fixture := writeFile(t, "graph.yaml", chain)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--graph-backend", "memory", "--fixture", fixture, "--log-format", "text"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImpactDownstream(t *testing.T) {
	out, err := run(t, "impact", "downstream", "s1")
	if err != nil {
		t.Fatal(err)
	}
	var res []domain.ImpactResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(res) != 4 || res[0].DistanceFromSource != 1 {
		t.Fatalf("results = %+v", res)
	}
}

func TestImpactEvent(t *testing.T) {
	ev := writeFile(t, "event.json", `{"id": "ev1", "event_type": "earthquake", "location": "loc-tw", "severity": "High", "confidence": 0.9}`)
	out, err := run(t, "impact", "event", ev)
	if err != nil {
		t.Fatal(err)
	}
	var a struct {
		Score domain.ImpactScore `json:"impact_score"`
	}
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatal(err)
	}
	if a.Score.AffectedProductsCount != 2 || a.Score.AffectedRevenue != 600000 {
		t.Fatalf("score = %+v", a.Score)
	}
}

func TestResilienceComponent(t *testing.T) {
	out, err := run(t, "resilience", "component", "c2", "--record")
	if err != nil {
		t.Fatal(err)
	}
	var s domain.ResilienceScore
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatal(err)
	}
	if s.EntityID != "c2" || s.Score <= 0 {
		t.Fatalf("score = %+v", s)
	}
}

func TestPrioritize(t *testing.T) {
	out, err := run(t, "prioritize", writeFile(t, "events.json", events))
	if err != nil {
		t.Fatal(err)
	}
	var p prioritized
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	if len(p.Ranked) != 2 || p.Ranked[0].RiskEvent.ID != "ev1" {
		t.Fatalf("ranked = %+v", p.Ranked)
	}
	if len(p.Failed) != 1 || p.Failed[0].EntityID != "ev3" {
		t.Fatalf("failed = %+v", p.Failed)
	}
	if len(p.Alerts) != 0 {
		t.Fatalf("no alert rules configured, got %+v", p.Alerts)
	}
}

func TestPaths(t *testing.T) {
	out, err := run(t, "paths", "s1", "p2")
	if err != nil {
		t.Fatal(err)
	}
	var paths []domain.Path
	if err := json.Unmarshal([]byte(out), &paths); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || len(paths[0].Nodes) != 3 {
		t.Fatalf("paths = %+v", paths)
	}
}

func TestImport(t *testing.T) {
	out, err := run(t, "import", writeFile(t, "extra.yaml", `
nodes:
  - {id: s3, label: Supplier}
edges:
  - {source: s3, target: c1, type: SUPPLIES}
`))
	if err != nil {
		t.Fatal(err)
	}
	var stats struct {
		Nodes map[string]int64 `json:"nodes"`
		Edges map[string]int64 `json:"edges"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Nodes["Supplier"] != 3 || stats.Edges["SUPPLIES"] != 4 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMemoryBackendNeedsFixture(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--graph-backend", "memory", "paths", "a", "b"})
	err := root.ExecuteContext(context.Background())
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpsEndpoints(t *testing.T) {
	v := viper.New()
	v.Set("graph.backend", "memory")
	v.Set("graph.fixture", writeFile(t, "graph.yaml", chain))
	cfg, err := config.Load(v, "")
	if err != nil {
		t.Fatal(err)
	}
	a, err := newApp(context.Background(), cfg, newLogger(cfg.Log, io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	srv := httptest.NewServer(opsHandler(a))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"graph_breaker":"closed"`) {
		t.Fatalf("healthz = %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("metrics = %d", resp.StatusCode)
	}
}
