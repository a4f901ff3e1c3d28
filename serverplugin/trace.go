package serverplugin

import (
	"context"
	"net"

	"golang.org/x/net/trace"

	"github.com/marsevilspirit/greeter/protocol"
)

const traceFamily = "greeter.Server"

// TracePlugin records server events on the golang.org/x/net/trace pages
// (/debug/requests, /debug/events).
type TracePlugin struct{}

func (p *TracePlugin) Register(name string, rcvr any, metadata string) error {
	tr := trace.New(traceFamily, "Register")
	defer tr.Finish()
	tr.LazyPrintf("Registering %s: %T", name, rcvr)
	return nil
}

func (p *TracePlugin) HandleConnAccept(conn net.Conn) (net.Conn, bool) {
	tr := trace.New(traceFamily, "Accept")
	defer tr.Finish()
	tr.LazyPrintf("Accepting connection from %s", conn.RemoteAddr().String())
	return conn, true
}

func (p *TracePlugin) PostReadRequest(ctx context.Context, r *protocol.Message, e error) error {
	if e != nil {
		return nil
	}
	tr := trace.New(traceFamily, "ReadRequest")
	defer tr.Finish()
	tr.LazyPrintf("read request %s.%s, seq: %d", r.ServicePath, r.ServiceMethod, r.Seq())
	return nil
}

func (p *TracePlugin) PostWriteResponse(ctx context.Context, req *protocol.Message, res *protocol.Message, err error) error {
	tr := trace.New(traceFamily, "WriteResponse")
	defer tr.Finish()
	if err == nil {
		tr.LazyPrintf("succeed to call %s.%s, seq: %d", req.ServicePath, req.ServiceMethod, req.Seq())
	} else {
		tr.LazyPrintf("failed to call %s.%s, seq: %d: %v", req.ServicePath, req.ServiceMethod, req.Seq(), err)
		tr.SetError()
	}
	return nil
}
