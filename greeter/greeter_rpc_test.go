package greeter_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marsevilspirit/greeter/client"
	"github.com/marsevilspirit/greeter/greeter"
	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/server"
)

func startGreeter(t *testing.T) *server.Server {
	t.Helper()

	s := server.NewServer()
	require.NoError(t, greeter.RegisterGreeterServer(s, &greeter.Greeter{}))
	require.NoError(t, s.Start("tcp", "127.0.0.1:0"))
	t.Cleanup(s.Stop)
	return s
}

func dialGreeter(t *testing.T, s *server.Server, opt client.Option) greeter.GreeterClient {
	t.Helper()

	c := client.NewClient(opt)
	require.NoError(t, c.Connect("tcp", s.Address().String()))
	t.Cleanup(func() { c.Close() })
	return greeter.NewGreeterClient(c)
}

func TestGreeterOverRPC(t *testing.T) {
	s := startGreeter(t)

	for _, st := range []protocol.SerializeType{protocol.MsgPack, protocol.JSON} {
		gc := dialGreeter(t, s, client.Option{SerializeType: st})

		reply, err := gc.SayHello(context.Background(), &greeter.HelloRequest{Name: "World"})
		require.NoError(t, err)
		assert.Equal(t, "Hello World", reply.Message)

		reply, err = gc.SayHello(context.Background(), &greeter.HelloRequest{Name: ""})
		require.NoError(t, err)
		assert.Equal(t, "Hello ", reply.Message)
	}

	assert.Equal(t, uint64(4), s.NumCalls(greeter.ServiceName, "SayHello"))
}

func TestGreeterConcurrentCalls(t *testing.T) {
	s := startGreeter(t)
	gc := dialGreeter(t, s, client.DefaultOption)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("caller-%d", i)
			reply, err := gc.SayHello(context.Background(), &greeter.HelloRequest{Name: name})
			if assert.NoError(t, err) {
				assert.Equal(t, "Hello "+name, reply.Message)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(n), s.NumCalls(greeter.ServiceName, "SayHello"))
}

func TestGreeterAfterStop(t *testing.T) {
	s := startGreeter(t)
	gc := dialGreeter(t, s, client.Option{Breaker: client.NoBreaker})

	_, err := gc.SayHello(context.Background(), &greeter.HelloRequest{Name: "World"})
	require.NoError(t, err)

	s.Stop()
	s.BlockUntilShutdown()

	_, err = gc.SayHello(context.Background(), &greeter.HelloRequest{Name: "World"})
	assert.Error(t, err)
}
