package server

import (
	"reflect"
	"sync"
)

// UsePool makes the server recycle argument and reply values between calls.
var UsePool bool

var argsReplyPools = &typePools{
	pools: make(map[reflect.Type]*sync.Pool),
	New: func(t reflect.Type) any {
		if t.Kind() == reflect.Ptr {
			return reflect.New(t.Elem()).Interface()
		}
		return reflect.New(t).Interface()
	},
}

type typePools struct {
	mu    sync.RWMutex
	pools map[reflect.Type]*sync.Pool
	New   func(t reflect.Type) any
}

func (p *typePools) Init(t reflect.Type) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pools[t]; ok {
		return
	}
	tp := &sync.Pool{}
	tp.New = func() any {
		return p.New(t)
	}
	p.pools[t] = tp
}

// Put zeroes x, which must have come from Get(t), and recycles it.
func (p *typePools) Put(t reflect.Type, x any) {
	if !UsePool {
		return
	}
	v := reflect.ValueOf(x).Elem()
	v.Set(reflect.Zero(v.Type()))

	p.mu.RLock()
	tp := p.pools[t]
	p.mu.RUnlock()
	if tp != nil {
		tp.Put(x)
	}
}

// Get returns a pointer to a zero value of t (or of *t's element).
func (p *typePools) Get(t reflect.Type) any {
	if !UsePool {
		return p.New(t)
	}

	p.mu.RLock()
	tp := p.pools[t]
	p.mu.RUnlock()
	if tp == nil {
		return p.New(t)
	}
	return tp.Get()
}
