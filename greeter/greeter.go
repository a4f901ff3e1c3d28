// Package greeter is the Greeter service: one unary method, SayHello, that
// answers "Hello <name>".
package greeter

import "context"

// ServiceName is the name the service is registered and called under.
const ServiceName = "Greeter"

// HelloRequest carries the name to greet. Any string is accepted, the
// empty string included.
type HelloRequest struct {
	Name string `json:"name" msgpack:"name"`
}

type HelloReply struct {
	Message string `json:"message" msgpack:"message"`
}

// Greeter is the stateless GreeterServer implementation.
type Greeter struct {
	UnimplementedGreeterServer
}

// SayHello returns "Hello " followed by the request's name, unmodified.
func (g *Greeter) SayHello(ctx context.Context, in *HelloRequest) (*HelloReply, error) {
	return &HelloReply{Message: "Hello " + in.Name}, nil
}
