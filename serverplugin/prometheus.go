package serverplugin

import (
	"context"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/share"
)

// PrometheusPlugin exports connection and per-method call metrics.
type PrometheusPlugin struct {
	acceptedConns   prometheus.Counter
	processedReqs   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusPlugin registers the plugin's collectors with reg, or with the
// default registerer when reg is nil.
func NewPrometheusPlugin(reg prometheus.Registerer) (*PrometheusPlugin, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	mp := &PrometheusPlugin{
		// 接受的连接数
		acceptedConns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accepted_connections_total",
			Help: "Total number of accepted connections.",
		}),
		// 处理的请求数
		processedReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "processed_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"service", "method", "status"}),
		// 请求处理时间
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Histogram of request processing durations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method"}),
	}

	for _, c := range []prometheus.Collector{mp.acceptedConns, mp.processedReqs, mp.requestDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return mp, nil
}

func (mp *PrometheusPlugin) HandleConnAccept(conn net.Conn) (net.Conn, bool) {
	mp.acceptedConns.Inc()
	return conn, true
}

func (mp *PrometheusPlugin) PostWriteResponse(ctx context.Context, req *protocol.Message, res *protocol.Message, e error) error {
	if req.IsHeartbeat() {
		return nil
	}

	status := "ok"
	if e != nil {
		status = "error"
	}
	svc, method := methodLabels(ctx, req)
	mp.processedReqs.WithLabelValues(svc, method, status).Inc()

	if start, ok := ctx.Value(share.StartRequestContextKey).(time.Time); ok {
		mp.requestDuration.WithLabelValues(svc, method).Observe(time.Since(start).Seconds())
	}
	return nil
}
