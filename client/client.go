package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/marsevilspirit/greeter/breaker"
	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/share"
	"github.com/marsevilspirit/greeter/util"
)

// ServiceError is an error returned by the remote service. The server was
// reached and answered; the call itself failed.
type ServiceError string

func (e ServiceError) Error() string {
	return string(e)
}

var DefaultOption = Option{
	ConnectTimeout:    10 * time.Second,
	SerializeType:     protocol.MsgPack,
	CompressType:      protocol.None,
	HeartbeatInterval: 3 * time.Second,
}

// Breaker guards calls. *breaker.Breaker implements it.
type Breaker interface {
	Execute(func() (any, error)) (any, error)
}

var defaultBreakerSettings = breaker.Settings{
	Name:        "client",
	MaxRequests: 5,
	Interval:    10 * time.Second,
	Timeout:     30 * time.Second,
	// 服务端返回的业务错误说明连接是好的, 不计入熔断
	IsSuccessful: func(err error) bool {
		var se ServiceError
		return err == nil || errors.As(err, &se) || errors.Is(err, context.Canceled)
	},
}

var (
	ErrShutdown         = errors.New("connection is shutdown")
	ErrUnsupportedCodec = errors.New("codec is unsupported")
)

const (
	ReaderBuffsize = 16 * 1024

	// 请求超过该长度才按 CompressType 压缩
	compressThreshold = 1024
)

// Call is an RPC in progress.
type Call struct {
	ServicePath   string
	ServiceMethod string

	Metadata    map[string]string
	ResMetadata map[string]string

	Args  any
	Reply any
	Error error
	Done  chan *Call
	IsRaw bool
}

func (call *Call) done() {
	select {
	case call.Done <- call:
		// ok
	default:
		log.Debug("rpc: discarding Call reply due to insufficient Done chan capacity")
	}
}

// for context key
type seqKey struct{}

type RPCClient interface {
	Connect(network, address string) error
	Go(ctx context.Context, servicePath, serviceMethod string, args any, reply any, done chan *Call) *Call
	Call(ctx context.Context, servicePath, serviceMethod string, args any, reply any) error
	SendRaw(ctx context.Context, r *protocol.Message) (map[string]string, []byte, error)
	Close() error

	IsClosing() bool
	IsShutdown() bool
}

var _ RPCClient = (*Client)(nil)

// Client is one connection to one server. Calls may be issued from many
// goroutines at once; responses are matched to calls by sequence number.
type Client struct {
	option Option

	Conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex

	mu       sync.Mutex
	seq      uint64
	pending  map[uint64]*Call
	closing  bool // closing 是用户主动关闭的
	shutdown bool // shutdown 是error发生时调用的

	Plugins PluginContainer
}

type Option struct {
	TLSConfig *tls.Config

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// Breaker defaults to a per-client breaker. Use NoBreaker to call
	// without one.
	Breaker Breaker

	SerializeType protocol.SerializeType
	CompressType  protocol.CompressType

	Heartbeat         bool
	HeartbeatInterval time.Duration
}

type noBreaker struct{}

func (noBreaker) Execute(f func() (any, error)) (any, error) {
	return f()
}

// NoBreaker disables circuit breaking when set as Option.Breaker.
var NoBreaker Breaker = noBreaker{}

func NewClient(options Option) *Client {
	client := &Client{
		option:  options,
		pending: make(map[uint64]*Call),
		Plugins: &pluginContainer{},
	}

	if client.option.ConnectTimeout == 0 {
		client.option.ConnectTimeout = DefaultOption.ConnectTimeout
	}

	if client.option.Breaker == nil {
		client.option.Breaker = breaker.NewBreaker(defaultBreakerSettings)
	}

	if client.option.SerializeType == protocol.SerializeNone {
		client.option.SerializeType = DefaultOption.SerializeType
	}

	if client.option.HeartbeatInterval == 0 {
		client.option.HeartbeatInterval = DefaultOption.HeartbeatInterval
	}

	return client
}

// Connect dials the server and starts reading responses.
func (client *Client) Connect(network, address string) error {
	dialer := &net.Dialer{Timeout: client.option.ConnectTimeout}

	var (
		conn net.Conn
		err  error
	)
	if client.option.TLSConfig != nil {
		conn, err = tls.DialWithDialer(dialer, network, address, client.option.TLSConfig)
	} else {
		conn, err = dialer.Dial(network, address)
	}
	if err != nil {
		return ex.New(ex.ErrCodeServiceUnavailable, "client: failed to connect").
			WithDetail("address", address).
			WithCause(err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(3 * time.Minute)
	}

	client.Conn = conn
	client.r = bufio.NewReaderSize(conn, ReaderBuffsize)

	go client.receive()

	if client.option.Heartbeat && client.option.HeartbeatInterval > 0 {
		go client.heartbeat()
	}

	return nil
}

var _ io.Closer = (*Client)(nil)

// Close fails every pending call with ErrShutdown and closes the connection.
func (client *Client) Close() error {
	client.mu.Lock()

	for seq, call := range client.pending {
		delete(client.pending, seq)
		if call != nil {
			call.Error = ErrShutdown
			call.done()
		}
	}

	if client.closing || client.shutdown {
		client.mu.Unlock()
		return ErrShutdown
	}

	client.closing = true
	client.mu.Unlock()

	if client.Conn == nil {
		return nil
	}
	return client.Conn.Close()
}

// IsClosing reports whether Close has been called.
func (client *Client) IsClosing() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.closing
}

// IsShutdown reports whether the connection has failed.
func (client *Client) IsShutdown() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.shutdown
}

func (client *Client) plugins() PluginContainer {
	if client.Plugins == nil {
		return &pluginContainer{}
	}
	return client.Plugins
}

// Call invokes servicePath.serviceMethod and waits for the reply. Request
// metadata is taken from ctx under share.ReqMetaDataKey; response metadata
// is copied into the map under share.ResMetaDataKey, if present.
func (client *Client) Call(ctx context.Context, servicePath, serviceMethod string, args, reply any) error {
	meta, _ := ctx.Value(share.ReqMetaDataKey).(map[string]string)

	plugins := client.plugins()
	if err := plugins.DoPreCall(ctx, servicePath, serviceMethod, args, meta); err != nil {
		return err
	}

	var err error
	if client.option.Breaker != nil {
		_, err = client.option.Breaker.Execute(func() (any, error) {
			return nil, client.call(ctx, servicePath, serviceMethod, args, reply)
		})
	} else {
		err = client.call(ctx, servicePath, serviceMethod, args, reply)
	}

	if perr := plugins.DoPostCall(ctx, servicePath, serviceMethod, args, reply, meta, err); perr != nil && err == nil {
		err = perr
	}
	return err
}

func (client *Client) call(ctx context.Context, servicePath, serviceMethod string, args, reply any) error {
	seq := new(uint64)
	ctx = context.WithValue(ctx, seqKey{}, seq)
	pc := client.Go(ctx, servicePath, serviceMethod, args, reply, make(chan *Call, 1))

	select {
	case <-ctx.Done():
		client.mu.Lock()
		call := client.pending[*seq]
		if call == pc {
			delete(client.pending, *seq)
		} else {
			call = nil
		}
		client.mu.Unlock()
		if call != nil {
			call.Error = ctx.Err()
			call.done()
		}

		return ctx.Err()
	case call := <-pc.Done:
		if resMeta, ok := ctx.Value(share.ResMetaDataKey).(map[string]string); ok && resMeta != nil {
			for k, v := range call.ResMetadata {
				resMeta[k] = v
			}
		}
		return call.Error
	}
}

// Go invokes the call asynchronously. The returned Call is sent on done
// (a buffered channel, allocated when nil) once it completes.
func (client *Client) Go(ctx context.Context, servicePath, serviceMethod string, args, reply any, done chan *Call) *Call {
	call := &Call{
		ServicePath:   servicePath,
		ServiceMethod: serviceMethod,
		Args:          args,
		Reply:         reply,
		Done:          done,
	}

	if meta, ok := ctx.Value(share.ReqMetaDataKey).(map[string]string); ok {
		call.Metadata = meta
	}

	if call.Done == nil {
		call.Done = make(chan *Call, 10)
	} else if cap(call.Done) == 0 {
		log.Panic("rpc: done channel is unbuffered")
	}

	client.send(ctx, call)
	return call
}

// register assigns the next sequence number to call, or fails it when the
// client is no longer usable.
func (client *Client) register(call *Call) (uint64, bool) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.shutdown || client.closing || client.Conn == nil {
		call.Error = ErrShutdown
		return 0, false
	}

	seq := client.seq
	client.seq++
	client.pending[seq] = call
	return seq, true
}

// fail removes the pending call seq, if still there, and completes it with err.
func (client *Client) fail(seq uint64, err error) {
	client.mu.Lock()
	call := client.pending[seq]
	delete(client.pending, seq)
	client.mu.Unlock()

	if call != nil {
		call.Error = err
		call.done()
	}
}

func (client *Client) send(ctx context.Context, call *Call) {
	codec := share.Codecs[client.option.SerializeType]
	if codec == nil {
		call.Error = ErrUnsupportedCodec
		call.done()
		return
	}

	seq, ok := client.register(call)
	if !ok {
		call.done()
		return
	}

	if cseq, ok := ctx.Value(seqKey{}).(*uint64); ok {
		*cseq = seq
	}

	req := protocol.GetPoolMsg()
	defer protocol.FreeMsg(req)

	req.SetMessageType(protocol.Request)
	req.SetSeq(seq)

	if call.ServicePath == "" && call.ServiceMethod == "" {
		req.SetHeartbeat(true)
	} else {
		req.SetSerializeType(client.option.SerializeType)
		req.Metadata = call.Metadata
		req.ServicePath = call.ServicePath
		req.ServiceMethod = call.ServiceMethod

		data, err := codec.Encode(call.Args)
		if err != nil {
			client.fail(seq, err)
			return
		}

		if len(data) > compressThreshold && client.option.CompressType == protocol.Gzip {
			data, err = util.Zip(data)
			if err != nil {
				client.fail(seq, err)
				return
			}
			req.SetCompressType(protocol.Gzip)
		}

		req.Payload = data
	}

	if err := client.write(req.Encode()); err != nil {
		client.fail(seq, err)
	}
}

func (client *Client) write(data []byte) error {
	client.wmu.Lock()
	defer client.wmu.Unlock()

	if d := client.option.WriteTimeout; d != 0 {
		client.Conn.SetWriteDeadline(time.Now().Add(d))
	}
	_, err := client.Conn.Write(data)
	return err
}

// SendRaw sends a prepared request as is and returns the response metadata
// and payload without decoding. The payload is decompressed if needed.
// A oneway request returns as soon as it is written.
func (client *Client) SendRaw(ctx context.Context, r *protocol.Message) (map[string]string, []byte, error) {
	call := &Call{
		IsRaw:         true,
		ServicePath:   r.ServicePath,
		ServiceMethod: r.ServiceMethod,
		Done:          make(chan *Call, 1),
	}

	seq, ok := client.register(call)
	if !ok {
		return nil, nil, call.Error
	}
	r.SetSeq(seq)

	if err := client.write(r.Encode()); err != nil {
		client.fail(seq, err)
		return nil, nil, err
	}

	if r.IsOneway() {
		client.mu.Lock()
		delete(client.pending, seq)
		client.mu.Unlock()
		return nil, nil, nil
	}

	select {
	case <-ctx.Done():
		client.fail(seq, ctx.Err())
		return nil, nil, ctx.Err()
	case call := <-call.Done:
		var payload []byte
		if data, ok := call.Reply.([]byte); ok {
			payload = data
		}
		return call.ResMetadata, payload, call.Error
	}
}

func (client *Client) receive() {
	var err error

	for err == nil {
		res := protocol.NewMessage()
		err = res.Decode(client.r)
		if err != nil {
			break
		}

		seq := res.Seq()
		client.mu.Lock()
		call := client.pending[seq]
		delete(client.pending, seq)
		client.mu.Unlock()

		if call == nil {
			// 已经超时或被取消的调用
			continue
		}

		call.ResMetadata = res.Metadata

		switch {
		case res.MessageStatusType() == protocol.Error:
			call.Error = ServiceError(res.Metadata[protocol.ServiceError])
		case res.IsHeartbeat():
		default:
			data := res.Payload
			if res.CompressType() == protocol.Gzip {
				var uerr error
				if data, uerr = util.Unzip(data); uerr != nil {
					call.Error = ServiceError("unzip payload: " + uerr.Error())
					break
				}
			}

			if call.IsRaw {
				call.Reply = data
				break
			}

			if len(data) > 0 && call.Reply != nil {
				codec := share.Codecs[res.SerializeType()]
				if codec == nil {
					call.Error = ServiceError(ErrUnsupportedCodec.Error())
				} else if derr := codec.Decode(data, call.Reply); derr != nil {
					call.Error = ServiceError("decode payload: " + derr.Error())
				}
			}
		}

		call.done()
	}

	client.mu.Lock()
	client.shutdown = true
	closing := client.closing
	if err == io.EOF {
		if closing {
			err = ErrShutdown
		} else {
			err = io.ErrUnexpectedEOF
		}
	}

	// 连接断开时所有未完成的调用都以 ErrShutdown 失败, 保留原因
	callErr := err
	if !errors.Is(callErr, ErrShutdown) {
		callErr = fmt.Errorf("%w: %w", ErrShutdown, err)
	}
	for seq, call := range client.pending {
		delete(client.pending, seq)
		call.Error = callErr
		call.done()
	}
	client.mu.Unlock()

	if err != nil && err != ErrShutdown && !closing {
		log.Errorf("rpc: client protocol error: %v", err)
	}
}

func (client *Client) heartbeat() {
	ticker := time.NewTicker(client.option.HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		if client.IsShutdown() || client.IsClosing() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), client.option.HeartbeatInterval)
		err := client.call(ctx, "", "", nil, nil)
		cancel()
		if err != nil {
			log.Warnf("rpc: client heartbeat error: %v to %s", err, client.Conn.RemoteAddr().String())
		}
	}
}
