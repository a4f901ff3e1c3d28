package serverplugin

import (
	"context"
	"net"
	"sort"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/share"
)

// MetricsPlugin keeps in-process rates and latencies in a go-metrics
// registry:
//
//	connections                      meter
//	service.<svc>.<method>.requests  meter
//	service.<svc>.<method>.errors    meter
//	service.<svc>.<method>.duration  timer
//
// Calls to methods the server does not know are counted under
// service.unknown.unknown.
type MetricsPlugin struct {
	Registry metrics.Registry
}

// NewMetricsPlugin uses r, or a fresh registry when r is nil.
func NewMetricsPlugin(r metrics.Registry) *MetricsPlugin {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &MetricsPlugin{Registry: r}
}

func (p *MetricsPlugin) name(ctx context.Context, req *protocol.Message, metric string) string {
	svc, method := methodLabels(ctx, req)
	return "service." + svc + "." + method + "." + metric
}

func (p *MetricsPlugin) Register(name string, rcvr any, metadata string) error {
	log.Debugf("metrics: tracking service %s", name)
	return nil
}

func (p *MetricsPlugin) HandleConnAccept(conn net.Conn) (net.Conn, bool) {
	metrics.GetOrRegisterMeter("connections", p.Registry).Mark(1)
	return conn, true
}

func (p *MetricsPlugin) PostReadRequest(ctx context.Context, r *protocol.Message, e error) error {
	if e != nil || r.IsHeartbeat() {
		return nil
	}
	metrics.GetOrRegisterMeter(p.name(ctx, r, "requests"), p.Registry).Mark(1)
	return nil
}

func (p *MetricsPlugin) PostWriteResponse(ctx context.Context, req *protocol.Message, res *protocol.Message, e error) error {
	if req.IsHeartbeat() {
		return nil
	}
	if e != nil {
		metrics.GetOrRegisterMeter(p.name(ctx, req, "errors"), p.Registry).Mark(1)
	}

	if start, ok := ctx.Value(share.StartRequestContextKey).(time.Time); ok {
		metrics.GetOrRegisterTimer(p.name(ctx, req, "duration"), p.Registry).UpdateSince(start)
	}
	return nil
}

// Report logs one line per metric, sorted by name.
func (p *MetricsPlugin) Report(l log.Logger) {
	var names []string
	p.Registry.Each(func(name string, _ any) {
		names = append(names, name)
	})
	sort.Strings(names)

	for _, name := range names {
		switch m := p.Registry.Get(name).(type) {
		case metrics.Meter:
			s := m.Snapshot()
			l.WithFields(log.Fields{"count": s.Count(), "rate1": s.Rate1()}).Info(name)
		case metrics.Timer:
			s := m.Snapshot()
			l.WithFields(log.Fields{
				"count": s.Count(),
				"mean":  time.Duration(s.Mean()).String(),
				"p99":   time.Duration(s.Percentile(0.99)).String(),
			}).Info(name)
		}
	}
}
