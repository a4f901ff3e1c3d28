package greeter

import (
	"context"

	ex "github.com/marsevilspirit/greeter/errors"
)

// GreeterServer is the server API for the Greeter service.
// Implementations must embed UnimplementedGreeterServer.
type GreeterServer interface {
	SayHello(context.Context, *HelloRequest) (*HelloReply, error)
	mustEmbedUnimplementedGreeterServer()
}

// UnimplementedGreeterServer answers every method with a NotFound error.
type UnimplementedGreeterServer struct{}

func (UnimplementedGreeterServer) SayHello(context.Context, *HelloRequest) (*HelloReply, error) {
	return nil, ex.New(ex.ErrCodeNotFound, "method SayHello not implemented")
}
func (UnimplementedGreeterServer) mustEmbedUnimplementedGreeterServer() {}

// ServiceRegistrar is implemented by *server.Server.
type ServiceRegistrar interface {
	RegisterWithName(name string, rcvr any, metadata string) error
}

// RegisterGreeterServer publishes srv under ServiceName.
func RegisterGreeterServer(s ServiceRegistrar, srv GreeterServer) error {
	return s.RegisterWithName(ServiceName, &greeterHandler{srv: srv}, "")
}

// greeterHandler adapts a GreeterServer to the registry's method shape.
type greeterHandler struct {
	srv GreeterServer
}

func (h *greeterHandler) SayHello(ctx context.Context, in *HelloRequest, out *HelloReply) error {
	reply, err := h.srv.SayHello(ctx, in)
	if err != nil {
		return err
	}
	if reply == nil {
		return ex.New(ex.ErrCodeInternalError, "SayHello returned a nil reply")
	}
	*out = *reply
	return nil
}

// Invoker is implemented by *client.Client.
type Invoker interface {
	Call(ctx context.Context, servicePath, serviceMethod string, args, reply any) error
}

// GreeterClient is the client API for the Greeter service.
type GreeterClient interface {
	SayHello(ctx context.Context, in *HelloRequest) (*HelloReply, error)
}

type greeterClient struct {
	cc Invoker
}

func NewGreeterClient(cc Invoker) GreeterClient {
	return &greeterClient{cc}
}

func (c *greeterClient) SayHello(ctx context.Context, in *HelloRequest) (*HelloReply, error) {
	out := new(HelloReply)
	if err := c.cc.Call(ctx, ServiceName, "SayHello", in, out); err != nil {
		return nil, err
	}
	return out, nil
}
