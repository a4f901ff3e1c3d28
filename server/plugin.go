package server

import (
	"context"
	"net"
	"sync"

	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/protocol"
)

type PluginContainer interface {
	Add(plugin Plugin)
	Remove(plugin Plugin)
	All() []Plugin

	DoRegister(name string, rcvr any, metadata string) error

	DoPostConnAccept(net.Conn) (net.Conn, bool)

	DoPreReadRequest(ctx context.Context) error
	DoPostReadRequest(ctx context.Context, r *protocol.Message, e error) error

	DoPreWriteResponse(context.Context, *protocol.Message) error
	DoPostWriteResponse(context.Context, *protocol.Message, *protocol.Message, error) error
}

// Plugin is any value implementing one or more of the hook interfaces below.
type Plugin any

type (
	RegisterPlugin interface {
		Register(name string, rcvr any, metadata string) error
	}

	// PostConnAcceptPlugin may wrap or reject an accepted connection.
	PostConnAcceptPlugin interface {
		HandleConnAccept(net.Conn) (net.Conn, bool)
	}

	PreReadRequestPlugin interface {
		PreReadRequest(ctx context.Context) error
	}

	PostReadRequestPlugin interface {
		PostReadRequest(ctx context.Context, r *protocol.Message, e error) error
	}

	PreWriteResponsePlugin interface {
		PreWriteResponse(context.Context, *protocol.Message) error
	}

	PostWriteResponsePlugin interface {
		PostWriteResponse(context.Context, *protocol.Message, *protocol.Message, error) error
	}
)

type pluginContainer struct {
	mu      sync.RWMutex
	plugins []Plugin
}

func (p *pluginContainer) Add(plugin Plugin) {
	p.mu.Lock()
	p.plugins = append(p.plugins, plugin)
	p.mu.Unlock()
}

func (p *pluginContainer) Remove(plugin Plugin) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var plugins []Plugin
	for _, pp := range p.plugins {
		if pp != plugin {
			plugins = append(plugins, pp)
		}
	}

	p.plugins = plugins
}

func (p *pluginContainer) All() []Plugin {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]Plugin(nil), p.plugins...)
}

func (p *pluginContainer) DoRegister(name string, rcvr any, metadata string) error {
	es := ex.NewMultiError(nil)
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(RegisterPlugin); ok {
			if err := plugin.Register(name, rcvr, metadata); err != nil {
				es.Add(err)
			}
		}
	}

	return es.ErrorOrNil()
}

func (p *pluginContainer) DoPostConnAccept(conn net.Conn) (net.Conn, bool) {
	var flag bool
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PostConnAcceptPlugin); ok {
			conn, flag = plugin.HandleConnAccept(conn)
			if !flag {
				conn.Close()
				return conn, false
			}
		}
	}

	return conn, true
}

func (p *pluginContainer) DoPreReadRequest(ctx context.Context) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PreReadRequestPlugin); ok {
			if err := plugin.PreReadRequest(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *pluginContainer) DoPostReadRequest(ctx context.Context, r *protocol.Message, e error) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PostReadRequestPlugin); ok {
			if err := plugin.PostReadRequest(ctx, r, e); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *pluginContainer) DoPreWriteResponse(ctx context.Context, req *protocol.Message) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PreWriteResponsePlugin); ok {
			if err := plugin.PreWriteResponse(ctx, req); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *pluginContainer) DoPostWriteResponse(ctx context.Context, req *protocol.Message, resp *protocol.Message, e error) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PostWriteResponsePlugin); ok {
			if err := plugin.PostWriteResponse(ctx, req, resp, e); err != nil {
				return err
			}
		}
	}

	return nil
}
