package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/marsevilspirit/greeter/breaker"
	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/metadata"
	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/server"
	"github.com/marsevilspirit/greeter/share"
)

type Args struct {
	A int
	B int
}

type Reply struct {
	C int
}

type Arith int

func (t *Arith) Mul(ctx context.Context, args *Args, reply *Reply) error {
	reply.C = args.A * args.B
	return nil
}

func (t *Arith) Echo(ctx context.Context, args *string, reply *string) error {
	*reply = *args
	return nil
}

func (t *Arith) Tenant(ctx context.Context, args *Args, reply *string) error {
	md, _ := metadata.FromContext(ctx)
	if v := md.Get("tenant"); len(v) > 0 {
		*reply = v[0]
	}
	return nil
}

func (t *Arith) Sleep(ctx context.Context, args *Args, reply *Reply) error {
	time.Sleep(time.Duration(args.A) * time.Millisecond)
	return nil
}

func (t *Arith) Fail(ctx context.Context, args *Args, reply *Reply) error {
	return errors.New("arith failed")
}

type PBArith int

func (t *PBArith) Upper(ctx context.Context, args *wrapperspb.StringValue, reply *wrapperspb.StringValue) error {
	reply.Value = strings.ToUpper(args.Value)
	return nil
}

func startServer(t *testing.T) *server.Server {
	t.Helper()

	s := server.NewServer()
	require.NoError(t, s.RegisterWithName("Arith", new(Arith), ""))
	require.NoError(t, s.RegisterWithName("PBArith", new(PBArith), ""))
	require.NoError(t, s.Start("tcp", "127.0.0.1:0"))
	t.Cleanup(s.Stop)
	return s
}

func connect(t *testing.T, s *server.Server, opt Option) *Client {
	t.Helper()

	c := NewClient(opt)
	require.NoError(t, c.Connect("tcp", s.Address().String()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_IT(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	args := &Args{A: 10, B: 20}

	reply := &Reply{}
	err := c.Call(context.Background(), "Arith", "Mul", args, reply)
	require.NoError(t, err)
	assert.Equal(t, 200, reply.C)

	err = c.Call(context.Background(), "Arith", "Add", args, reply)
	var se ServiceError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Contains(t, se.Error(), "can't find method Add")

	err = c.Call(context.Background(), "Arith", "Fail", args, reply)
	assert.Equal(t, ServiceError("arith failed"), err)
}

func TestClientCodecs(t *testing.T) {
	s := startServer(t)

	for _, st := range []protocol.SerializeType{protocol.JSON, protocol.MsgPack} {
		c := connect(t, s, Option{SerializeType: st})
		reply := &Reply{}
		require.NoError(t, c.Call(context.Background(), "Arith", "Mul", &Args{A: 3, B: 4}, reply))
		assert.Equal(t, 12, reply.C)
	}

	c := connect(t, s, Option{SerializeType: protocol.ProtoBuffer})
	reply := &wrapperspb.StringValue{}
	require.NoError(t, c.Call(context.Background(), "PBArith", "Upper", wrapperspb.String("hello"), reply))
	assert.Equal(t, "HELLO", reply.Value)
}

func TestClientGzip(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, Option{SerializeType: protocol.JSON, CompressType: protocol.Gzip})

	long := strings.Repeat("greeter ", 1000)
	var reply string
	require.NoError(t, c.Call(context.Background(), "Arith", "Echo", &long, &reply))
	assert.Equal(t, long, reply)
}

func TestClientMetadata(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	ctx := context.WithValue(context.Background(), share.ReqMetaDataKey, map[string]string{"tenant": "acme"})
	resMeta := map[string]string{}
	ctx = context.WithValue(ctx, share.ResMetaDataKey, resMeta)

	var reply string
	require.NoError(t, c.Call(ctx, "Arith", "Tenant", &Args{}, &reply))
	assert.Equal(t, "acme", reply)
}

func TestClientConcurrentCalls(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply := &Reply{}
			err := c.Call(context.Background(), "Arith", "Mul", &Args{A: i, B: 2}, reply)
			assert.NoError(t, err)
			assert.Equal(t, i*2, reply.C)
		}(i)
	}
	wg.Wait()
}

func TestClientContextTimeout(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, Option{Breaker: NoBreaker})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "Arith", "Sleep", &Args{A: 300}, &Reply{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the late reply is dropped and the connection stays usable
	reply := &Reply{}
	require.NoError(t, c.Call(context.Background(), "Arith", "Mul", &Args{A: 2, B: 2}, reply))
	assert.Equal(t, 4, reply.C)
}

func TestClientGo(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	call := c.Go(context.Background(), "Arith", "Mul", &Args{A: 6, B: 7}, &Reply{}, nil)
	select {
	case done := <-call.Done:
		require.NoError(t, done.Error)
		assert.Equal(t, 42, done.Reply.(*Reply).C)
	case <-time.After(3 * time.Second):
		t.Fatal("call did not complete")
	}
}

func TestClientSendRaw(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	req := protocol.NewMessage()
	req.SetSerializeType(protocol.JSON)
	req.ServicePath = "Arith"
	req.ServiceMethod = "Mul"
	req.Payload = []byte(`{"A":5,"B":5}`)

	_, payload, err := c.SendRaw(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"C":25}`, string(payload))

	req.ServiceMethod = "Fail"
	meta, _, err := c.SendRaw(context.Background(), req)
	assert.Equal(t, ServiceError("arith failed"), err)
	assert.Equal(t, "arith failed", meta[protocol.ServiceError])
}

func TestClientClose(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	require.NoError(t, c.Close())
	assert.True(t, c.IsClosing())
	assert.ErrorIs(t, c.Close(), ErrShutdown)

	err := c.Call(context.Background(), "Arith", "Mul", &Args{}, &Reply{})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestClientServerStopped(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)

	reply := &Reply{}
	require.NoError(t, c.Call(context.Background(), "Arith", "Mul", &Args{A: 1, B: 1}, reply))

	s.Stop()

	assert.Eventually(t, c.IsShutdown, 3*time.Second, 10*time.Millisecond)
	err := c.Call(context.Background(), "Arith", "Mul", &Args{}, reply)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestClientConnectionDroppedMidCall(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// 读到请求头后直接断开, 不回复
		buf := make([]byte, 8)
		io.ReadFull(conn, buf)
		conn.Close()
	}()

	c := NewClient(Option{Breaker: NoBreaker})
	require.NoError(t, c.Connect("tcp", ln.Addr().String()))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = c.Call(ctx, "Arith", "Mul", &Args{A: 1, B: 2}, &Reply{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Eventually(t, c.IsShutdown, time.Second, 10*time.Millisecond)
}

func TestConnectError(t *testing.T) {
	s := startServer(t)
	addr := s.Address().String()
	s.Stop()

	c := NewClient(Option{ConnectTimeout: time.Second})
	err := c.Connect("tcp", addr)
	assert.ErrorIs(t, err, ex.ErrServiceUnavailable)
}

func TestClientHeartbeat(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, Option{Heartbeat: true, HeartbeatInterval: 20 * time.Millisecond})

	time.Sleep(100 * time.Millisecond)
	assert.False(t, c.IsShutdown())
}

func TestClientBreakerIgnoresServiceErrors(t *testing.T) {
	s := startServer(t)
	b := breaker.NewBreaker(breaker.Settings{
		ReadyToTrip:  func(counts breaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsSuccessful: defaultBreakerSettings.IsSuccessful,
	})
	c := connect(t, s, Option{Breaker: b})

	for i := 0; i < 3; i++ {
		c.Call(context.Background(), "Arith", "Fail", &Args{}, &Reply{})
	}
	assert.Equal(t, breaker.Closed, b.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	c.Call(ctx, "Arith", "Sleep", &Args{A: 200}, &Reply{})
	assert.Equal(t, breaker.Open, b.State())

	err := c.Call(context.Background(), "Arith", "Mul", &Args{}, &Reply{})
	assert.ErrorIs(t, err, breaker.ErrOpenState)
}

type recordingPlugin struct {
	mu   sync.Mutex
	pre  []string
	post []error
}

func (p *recordingPlugin) DoPreCall(ctx context.Context, servicePath, serviceMethod string, args any, metadata map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pre = append(p.pre, servicePath+"."+serviceMethod)
	if serviceMethod == "Blocked" {
		return errors.New("blocked by plugin")
	}
	return nil
}

func (p *recordingPlugin) DoPostCall(ctx context.Context, servicePath, serviceMethod string, args any, reply any, metadata map[string]string, err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.post = append(p.post, err)
	return nil
}

func TestClientPlugins(t *testing.T) {
	s := startServer(t)
	c := connect(t, s, DefaultOption)
	p := &recordingPlugin{}
	c.Plugins.Add(p)

	require.NoError(t, c.Call(context.Background(), "Arith", "Mul", &Args{}, &Reply{}))
	err := c.Call(context.Background(), "Arith", "Blocked", &Args{}, &Reply{})
	assert.EqualError(t, err, "blocked by plugin")

	assert.Equal(t, []string{"Arith.Mul", "Arith.Blocked"}, p.pre)
	assert.Equal(t, []error{nil}, p.post)

	c.Plugins.Remove(p)
	assert.Empty(t, c.Plugins.All())
}
