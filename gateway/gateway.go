// Package gateway exposes RPC services over HTTP: POST /:service/:method
// forwards the request body as the call payload and answers with the reply
// payload.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/protocol"
)

// RawSender is implemented by *client.Client.
type RawSender interface {
	SendRaw(ctx context.Context, r *protocol.Message) (map[string]string, []byte, error)
}

type Gateway struct {
	Addr string

	client RawSender
	server *http.Server
}

func New(addr string, client RawSender) *Gateway {
	g := &Gateway{
		Addr:   addr,
		client: client,
	}
	g.server = &http.Server{Addr: addr, Handler: g.Handler()}
	return g
}

// Handler returns the gateway's routes.
func (g *Gateway) Handler() http.Handler {
	router := httprouter.New()
	router.POST("/:service/:method", g.handleRequest)
	return router
}

// Serve listens on Addr and blocks until Shutdown.
func (g *Gateway) Serve() error {
	ln, err := net.Listen("tcp", g.Addr)
	if err != nil {
		return err
	}
	log.Infof("gateway listening on %s", ln.Addr())

	err = g.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	wh := w.Header()

	req, err := HTTPRequest2RPCRequest(r, ps.ByName("service"), ps.ByName("method"))
	if err != nil {
		wh.Set(HeaderError, err.Error())
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m, payload, err := g.client.SendRaw(r.Context(), req)

	meta := make(map[string]string, len(m))
	for k, v := range m {
		if k != protocol.ServiceError {
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		wh.Set(HeaderMeta, urlencode(meta))
	}

	if err != nil {
		log.WithField("path", r.URL.Path).Warnf("gateway: call failed: %v", err)
		wh.Set(HeaderError, err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if req.IsOneway() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Write(payload)
}
