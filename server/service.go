package server

import (
	"context"
	"go/ast"
	"reflect"
	"sync/atomic"

	ex "github.com/marsevilspirit/greeter/errors"
	"github.com/marsevilspirit/greeter/log"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()

var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
	numCalls  atomic.Uint64
}

// NumCalls reports how many times the method has been invoked.
func (m *methodType) NumCalls() uint64 {
	return m.numCalls.Load()
}

type service struct {
	name   string
	rcvr   reflect.Value          // receiver of methods for the service
	typ    reflect.Type           // type of the receiver
	method map[string]*methodType // 注册方法
}

func isExportedOrBuiltinType(t reflect.Type) bool {
	// 解引用指针类型，直到得到非指针类型
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	// t.PkgPath() == "" 的判断是用来检查类型是否为内建类型或未命名类型
	return ast.IsExported(t.Name()) || t.PkgPath() == ""
}

// Register publishes the exported methods of rcvr under the receiver's type
// name. A method is published when it has the form
//
//	func (t *T) Method(ctx context.Context, args *A, reply *R) error
func (s *Server) Register(rcvr any, metadata string) error {
	return s.register(rcvr, "", false, metadata)
}

// RegisterWithName is like Register but uses name as the service name.
func (s *Server) RegisterWithName(name string, rcvr any, metadata string) error {
	return s.register(rcvr, name, true, metadata)
}

func (s *Server) register(rcvr any, name string, useName bool, metadata string) error {
	svc, err := newService(rcvr, name, useName)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	s.serviceMapMu.Lock()
	if s.serviceMap == nil {
		s.serviceMap = make(map[string]*service)
	}
	if _, dup := s.serviceMap[svc.name]; dup {
		s.serviceMapMu.Unlock()
		return ex.Newf(ex.ErrCodeInvalidRequest, "server.register: service already defined: %s", svc.name)
	}
	s.serviceMap[svc.name] = svc
	s.serviceMapMu.Unlock()

	for _, m := range svc.method {
		argsReplyPools.Init(m.ArgType)
		argsReplyPools.Init(m.ReplyType)
	}

	return s.plugins().DoRegister(svc.name, rcvr, metadata)
}

func newService(rcvr any, name string, useName bool) (*service, error) {
	svc := new(service)
	svc.typ = reflect.TypeOf(rcvr)
	svc.rcvr = reflect.ValueOf(rcvr)
	if svc.typ == nil {
		return nil, ex.New(ex.ErrCodeInvalidRequest, "server.register: nil receiver")
	}
	sname := reflect.Indirect(svc.rcvr).Type().Name()

	if useName {
		sname = name
	}

	if sname == "" {
		return nil, ex.New(ex.ErrCodeInvalidRequest, "server.register: no service name for type "+svc.typ.String())
	}

	if !useName && !ast.IsExported(sname) {
		return nil, ex.New(ex.ErrCodeInvalidRequest, "server.register: type "+sname+" is not exported")
	}

	svc.name = sname
	svc.method = suitableMethods(svc.typ, true)

	if len(svc.method) == 0 {
		var errorStr string

		method := suitableMethods(reflect.PointerTo(svc.typ), false)
		if len(method) != 0 {
			errorStr = "server.register: type " + sname + " has no exported methods of suitable type (hint: pass a pointer to value of that type)"
		} else {
			errorStr = "server.register: type " + sname + " has no exported methods of suitable type"
		}
		return nil, ex.New(ex.ErrCodeInvalidRequest, errorStr)
	}

	return svc, nil
}

func suitableMethods(typ reflect.Type, reportErr bool) map[string]*methodType {
	methods := make(map[string]*methodType)

	for m := 0; m < typ.NumMethod(); m++ {
		method := typ.Method(m)
		mtype := method.Type
		mname := method.Name

		if method.PkgPath != "" {
			continue
		}

		// receiver, context.Context, *args, *reply
		if mtype.NumIn() != 4 {
			if reportErr {
				log.Debugf("method %s has wrong number of ins: %d", mname, mtype.NumIn())
			}
			continue
		}

		ctxType := mtype.In(1)
		if !ctxType.Implements(typeOfContext) {
			if reportErr {
				log.Debugf("method %s must use context.Context as the first parameter", mname)
			}
			continue
		}

		argType := mtype.In(2)
		if !isExportedOrBuiltinType(argType) {
			if reportErr {
				log.Debugf("method %s argument type not exported: %v", mname, argType)
			}
			continue
		}

		// must be a pointer
		replyType := mtype.In(3)
		if replyType.Kind() != reflect.Ptr {
			if reportErr {
				log.Debugf("method %s reply type not a pointer: %v", mname, replyType)
			}
			continue
		}

		if !isExportedOrBuiltinType(replyType) {
			if reportErr {
				log.Debugf("method %s reply type not exported: %v", mname, replyType)
			}
			continue
		}

		if mtype.NumOut() != 1 {
			if reportErr {
				log.Debugf("method %s has wrong number of outs: %d", mname, mtype.NumOut())
			}
			continue
		}

		if returnType := mtype.Out(0); returnType != typeOfError {
			if reportErr {
				log.Debugf("method %s returns %s not error", mname, returnType.String())
			}
			continue
		}

		methods[mname] = &methodType{
			method:    method,
			ArgType:   argType,
			ReplyType: replyType,
		}
	}

	return methods
}

func (s *service) call(ctx context.Context, mtype *methodType, argv, replyv reflect.Value) error {
	mtype.numCalls.Add(1)
	f := mtype.method.Func

	returnValues := f.Call([]reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv})

	if errInter := returnValues[0].Interface(); errInter != nil {
		return errInter.(error)
	}

	return nil
}

// NumCalls reports how many calls the server has dispatched to
// serviceName.methodName. Unknown methods report zero.
func (s *Server) hasMethod(serviceName, methodName string) bool {
	s.serviceMapMu.RLock()
	defer s.serviceMapMu.RUnlock()

	service := s.serviceMap[serviceName]
	return service != nil && service.method[methodName] != nil
}

func (s *Server) NumCalls(serviceName, methodName string) uint64 {
	s.serviceMapMu.RLock()
	defer s.serviceMapMu.RUnlock()

	svc := s.serviceMap[serviceName]
	if svc == nil {
		return 0
	}
	if m := svc.method[methodName]; m != nil {
		return m.NumCalls()
	}
	return 0
}
