package client

import (
	"context"
	"sync"
)

type PluginContainer interface {
	Add(plugin Plugin)
	Remove(plugin Plugin)
	All() []Plugin

	DoPreCall(ctx context.Context, servicePath, serviceMethod string, args any, metadata map[string]string) error
	DoPostCall(ctx context.Context, servicePath, serviceMethod string, args any, reply any, metadata map[string]string, err error) error
}

type Plugin any

type (
	// PreCallPlugin is invoked before the client calls a server. An error
	// aborts the call.
	PreCallPlugin interface {
		DoPreCall(ctx context.Context, servicePath, serviceMethod string, args any, metadata map[string]string) error
	}

	// PostCallPlugin is invoked after the client calls a server, with the
	// call's error.
	PostCallPlugin interface {
		DoPostCall(ctx context.Context, servicePath, serviceMethod string, args any, reply any, metadata map[string]string, err error) error
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

// DoPreCall executes before call
func (p *pluginContainer) DoPreCall(ctx context.Context, servicePath, serviceMethod string, args any, metadata map[string]string) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PreCallPlugin); ok {
			if err := plugin.DoPreCall(ctx, servicePath, serviceMethod, args, metadata); err != nil {
				return err
			}
		}
	}

	return nil
}

// DoPostCall executes after call
func (p *pluginContainer) DoPostCall(ctx context.Context, servicePath, serviceMethod string, args any, reply any, metadata map[string]string, err error) error {
	for _, plugin := range p.All() {
		if plugin, ok := plugin.(PostCallPlugin); ok {
			if perr := plugin.DoPostCall(ctx, servicePath, serviceMethod, args, reply, metadata, err); perr != nil {
				return perr
			}
		}
	}
	return nil
}
