package serverplugin

import (
	"context"

	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/share"
)

const unknownLabel = "unknown"

// methodLabels names the service and method of req for metrics. Names the
// server has not registered come from the caller and collapse to
// unknownLabel, so they can't grow the number of series.
func methodLabels(ctx context.Context, req *protocol.Message) (service, method string) {
	if known, _ := ctx.Value(share.MethodKnownContextKey).(bool); known {
		return req.ServicePath, req.ServiceMethod
	}
	return unknownLabel, unknownLabel
}
