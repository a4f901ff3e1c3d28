package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"reflect"
	"runtime"
	"sync"
	"time"

	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/metadata"
	"github.com/marsevilspirit/greeter/protocol"
	"github.com/marsevilspirit/greeter/share"
	"github.com/marsevilspirit/greeter/util"
)

// ErrServerClosed is returned by Serve after the server has been stopped.
var ErrServerClosed = errors.New("server: Server closed")

const (
	// DefaultPort is the port the greeter service listens on.
	DefaultPort = 50051

	ReaderBufferSize = 1024

	// 响应超过该长度且请求本身是压缩的才压缩
	compressThreshold = 1024
)

// DefaultAddress binds DefaultPort on every interface.
var DefaultAddress = fmt.Sprintf(":%d", DefaultPort)

type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "server context value " + k.name
}

var (
	// RemoteConnContextKey holds the net.Conn a request arrived on.
	RemoteConnContextKey = &contextKey{"remote-conn"}
)

// Server serves registered services over one listener. The zero value is
// ready to use; NewServer applies options.
type Server struct {
	readTimeout     time.Duration
	writeTimeout    time.Duration
	tlsConfig       *tls.Config
	shutdownSignals []os.Signal
	diag            io.Writer

	serviceMapMu sync.RWMutex
	serviceMap   map[string]*service

	mu          sync.Mutex
	state       State
	ln          net.Listener
	lnDeadliner deadliner
	activeConn  map[net.Conn]struct{}
	done        chan struct{} // closed when Stopping begins
	stopped     chan struct{} // closed once Stopped
	finished    chan struct{} // closed once the onShutdown hooks have run
	onShutdown  []func()
	stopSignals func()

	// accept loop plus one per live connection
	connWG sync.WaitGroup

	pluginsOnce sync.Once
	Plugins     PluginContainer
}

func NewServer(options ...OptionFn) *Server {
	s := &Server{
		Plugins: &pluginContainer{},
	}

	for _, op := range options {
		op(s)
	}

	return s
}

func (s *Server) plugins() PluginContainer {
	s.pluginsOnce.Do(func() {
		if s.Plugins == nil {
			s.Plugins = &pluginContainer{}
		}
	})
	return s.Plugins
}

// Address returns the bound address, or nil before Start.
func (s *Server) Address() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

func (s *Server) getDoneLocked() chan struct{} {
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

func (s *Server) getStoppedLocked() chan struct{} {
	if s.stopped == nil {
		s.stopped = make(chan struct{})
	}
	return s.stopped
}

func (s *Server) getFinishedLocked() chan struct{} {
	if s.finished == nil {
		s.finished = make(chan struct{})
	}
	return s.finished
}

func (s *Server) closeDoneLocked() {
	ch := s.getDoneLocked()
	select {
	case <-ch:
		// 已经关闭，不用再次关闭
	default:
		close(ch)
	}
}

func (s *Server) shuttingDownLocked() bool {
	return s.state == Stopping || s.state == Stopped
}

// Start binds network/address and serves in the background. It fails with
// an ErrBind-coded error when the address cannot be bound, leaving the
// server in Created, and with an ErrInvalidState-coded error when the server
// has already been started.
func (s *Server) Start(network, address string) error {
	s.mu.Lock()
	if s.state != Created {
		state := s.state
		s.mu.Unlock()
		return ex.Newf(ex.ErrCodeInvalidState, "server: Start called on a %s server", state)
	}

	ln, err := makeListener(network, address)
	if err != nil {
		s.mu.Unlock()
		return ex.New(ex.ErrCodeBind, "server: failed to listen").
			WithDetail("network", network).
			WithDetail("address", address).
			WithCause(err)
	}

	s.lnDeadliner, _ = ln.(deadliner)
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.ln = ln
	s.state = Started
	if s.activeConn == nil {
		s.activeConn = make(map[net.Conn]struct{})
	}
	done := s.getDoneLocked()
	s.getStoppedLocked()
	s.getFinishedLocked()
	if len(s.shutdownSignals) > 0 {
		s.stopSignals = s.handleSignals(s.shutdownSignals, done)
	}
	s.plugins()

	s.connWG.Add(1)
	s.mu.Unlock()

	log.Infof("server started, listening on %s", ln.Addr().String())

	go func() {
		defer s.connWG.Done()
		s.serveListener(ln, done)
	}()

	return nil
}

// Serve starts the server and blocks until it has stopped.
func (s *Server) Serve(network, address string) error {
	if err := s.Start(network, address); err != nil {
		return err
	}
	s.BlockUntilShutdown()
	return ErrServerClosed
}

func (s *Server) serveListener(ln net.Listener, done <-chan struct{}) {
	var tempDelay time.Duration

	for {
		conn, e := ln.Accept()
		if e != nil {
			select {
			case <-done:
				return
			default:
			}

			if ne, ok := e.(interface{ Temporary() bool }); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}

				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}

				log.Errorf("server: accept error: %v; retrying in %v", e, tempDelay)
				time.Sleep(tempDelay)
				continue
			}

			log.Errorf("server: accept error: %v; stopping", e)
			go s.Stop()
			return
		}
		tempDelay = 0

		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(3 * time.Minute)
		}

		conn, ok := s.plugins().DoPostConnAccept(conn)
		if !ok {
			continue
		}

		if !s.trackConn(conn) {
			conn.Close()
			return
		}

		go s.serveConn(conn)
	}
}

// trackConn registers conn unless shutdown has begun.
func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDownLocked() {
		return false
	}
	s.activeConn[conn] = struct{}{}
	s.connWG.Add(1)
	return true
}

// armReadDeadline prepares conn for reading the next request. It reports
// false once shutdown has begun so that no further requests are admitted.
func (s *Server) armReadDeadline(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDownLocked() {
		return false
	}
	if d := s.readTimeout; d != 0 {
		conn.SetReadDeadline(time.Now().Add(d))
	}
	return true
}

func (s *Server) serveConn(conn net.Conn) {
	var (
		handlers sync.WaitGroup
		wmu      sync.Mutex
	)

	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Errorf("serving %s panic error: %s, stack:\n %s", conn.RemoteAddr(), err, buf)
		}

		// drain: every admitted call on this connection answers first
		handlers.Wait()

		s.mu.Lock()
		delete(s.activeConn, conn)
		s.mu.Unlock()
		conn.Close()
		s.connWG.Done()
	}()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if d := s.readTimeout; d != 0 {
			conn.SetReadDeadline(time.Now().Add(d))
		}
		if d := s.writeTimeout; d != 0 {
			conn.SetWriteDeadline(time.Now().Add(d))
		}
		if err := tlsConn.Handshake(); err != nil {
			log.Errorf("server: TLS handshake error from %s: %v", conn.RemoteAddr(), err)
			return
		}
	}

	connCtx := context.WithValue(context.Background(), RemoteConnContextKey, conn)
	r := bufio.NewReaderSize(conn, ReaderBufferSize)

	for {
		if !s.armReadDeadline(conn) {
			return
		}

		ctx, req, err := s.readRequest(connCtx, r)
		if err != nil {
			s.mu.Lock()
			closing := s.shuttingDownLocked()
			s.mu.Unlock()

			switch {
			case closing:
			case err == io.EOF:
				log.Debugf("client disconnected: %s", conn.RemoteAddr().String())
			default:
				log.WithField("remote", conn.RemoteAddr().String()).Warnf("server: failed to read request: %v", err)
			}
			return
		}

		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.processRequest(ctx, conn, &wmu, req)
		}()
	}
}

func (s *Server) readRequest(ctx context.Context, r io.Reader) (context.Context, *protocol.Message, error) {
	plugins := s.plugins()
	if err := plugins.DoPreReadRequest(ctx); err != nil {
		return ctx, nil, err
	}

	req := protocol.GetPoolMsg()
	err := req.Decode(r)
	if err == nil {
		ctx = context.WithValue(ctx, share.StartRequestContextKey, time.Now())
		ctx = context.WithValue(ctx, share.MethodKnownContextKey, s.hasMethod(req.ServicePath, req.ServiceMethod))
	}

	if perr := plugins.DoPostReadRequest(ctx, req, err); perr != nil && err == nil {
		err = perr
	}
	if err != nil {
		protocol.FreeMsg(req)
		return ctx, nil, err
	}

	return ctx, req, nil
}

func (s *Server) processRequest(ctx context.Context, conn net.Conn, wmu *sync.Mutex, req *protocol.Message) {
	defer protocol.FreeMsg(req)

	if req.IsHeartbeat() {
		res := req.Clone()
		res.SetMessageType(protocol.Response)
		s.writeResponse(conn, wmu, res)
		protocol.FreeMsg(res)
		return
	}

	res, err := s.handleRequest(ctx, req)
	if err != nil {
		log.WithContext(ctx).Warnf("server: failed to handle %s.%s: %v", req.ServicePath, req.ServiceMethod, err)
	}

	plugins := s.plugins()
	plugins.DoPreWriteResponse(ctx, req)

	if !req.IsOneway() {
		s.writeResponse(conn, wmu, res)
	}

	plugins.DoPostWriteResponse(ctx, req, res, err)
	protocol.FreeMsg(res)
}

func (s *Server) writeResponse(conn net.Conn, wmu *sync.Mutex, res *protocol.Message) {
	data := res.Encode()

	wmu.Lock()
	defer wmu.Unlock()

	if d := s.writeTimeout; d != 0 {
		conn.SetWriteDeadline(time.Now().Add(d))
	}
	if _, err := conn.Write(data); err != nil {
		log.Warnf("server: failed to write response seq %d to %s: %v", res.Seq(), conn.RemoteAddr(), err)
	}
}

func (s *Server) handleRequest(ctx context.Context, req *protocol.Message) (res *protocol.Message, err error) {
	res = req.Clone()
	res.SetMessageType(protocol.Response)

	serviceName := req.ServicePath
	methodName := req.ServiceMethod

	// 处理函数 panic 时返回错误而不是让进程崩溃
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Errorf("server: %s.%s panic: %v, stack:\n %s", serviceName, methodName, r, buf)
			res, err = handleError(res, ex.Newf(ex.ErrCodeInternalError, "%s.%s panicked: %v", serviceName, methodName, r))
		}
	}()

	s.serviceMapMu.RLock()
	service := s.serviceMap[serviceName]
	s.serviceMapMu.RUnlock()
	if service == nil {
		return handleError(res, ex.New(ex.ErrCodeNotFound, "can't find service "+serviceName))
	}
	mtype := service.method[methodName]
	if mtype == nil {
		return handleError(res, ex.New(ex.ErrCodeNotFound, "can't find method "+methodName))
	}

	codec := share.Codecs[req.SerializeType()]
	if codec == nil {
		return handleError(res, ex.Newf(ex.ErrCodeInvalidRequest, "can not find codec for %d", req.SerializeType()))
	}

	payload := req.Payload
	if req.CompressType() == protocol.Gzip {
		payload, err = util.Unzip(payload)
		if err != nil {
			return handleError(res, ex.New(ex.ErrCodeInvalidRequest, "unzip payload").WithCause(err))
		}
	}

	argp := argsReplyPools.Get(mtype.ArgType)
	defer argsReplyPools.Put(mtype.ArgType, argp)

	if err = codec.Decode(payload, argp); err != nil {
		return handleError(res, ex.New(ex.ErrCodeInvalidRequest, "decode args").WithCause(err))
	}

	argv := reflect.ValueOf(argp)
	if mtype.ArgType.Kind() != reflect.Ptr {
		argv = argv.Elem()
	}

	replyp := argsReplyPools.Get(mtype.ReplyType)
	defer argsReplyPools.Put(mtype.ReplyType, replyp)

	if len(req.Metadata) > 0 {
		ctx = metadata.NewContext(ctx, metadata.New(req.Metadata))
	}

	err = service.call(ctx, mtype, argv, reflect.ValueOf(replyp))
	if err != nil {
		return handleError(res, err)
	}

	if !req.IsOneway() {
		data, err := codec.Encode(replyp)
		if err != nil {
			return handleError(res, ex.New(ex.ErrCodeInternalError, "encode reply").WithCause(err))
		}

		if req.CompressType() == protocol.Gzip && len(data) > compressThreshold {
			data, err = util.Zip(data)
			if err != nil {
				return handleError(res, ex.New(ex.ErrCodeInternalError, "zip reply").WithCause(err))
			}
		} else {
			res.SetCompressType(protocol.None)
		}
		res.Payload = data
	}

	return res, nil
}

func handleError(res *protocol.Message, err error) (*protocol.Message, error) {
	res.SetMessageStatusType(protocol.Error)
	if res.Metadata == nil {
		res.Metadata = make(map[string]string)
	}
	res.Metadata[protocol.ServiceError] = err.Error()
	return res, err
}

// Close 立即关闭监听和所有连接, 不等待正在处理的请求写回
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Created || s.state == Stopped {
		return nil
	}
	if s.state == Started {
		s.beginStopLocked()
	}

	err := s.ln.Close()
	for c := range s.activeConn {
		c.Close()
	}

	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// RegisterOnShutdown registers f to run once the server has stopped. Stop
// does not wait for the hooks; BlockUntilShutdown does. A hook may call Stop.
func (s *Server) RegisterOnShutdown(f func()) {
	s.mu.Lock()
	s.onShutdown = append(s.onShutdown, f)
	s.mu.Unlock()
}
