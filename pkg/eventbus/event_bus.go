package eventbus

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventBus fans domain events out to in-process subscribers. Services publish
// after their transaction commits; a failing or panicking subscriber must
// never surface back into the write path, so Publish swallows handler panics
// and only logs them.
type EventBus interface {
	Publish(args ...interface{})
	Subscribe(handler interface{})
	Unsubscribe(handler interface{})
	SubscribersCount() int
}

type publisher struct {
	log *logrus.Logger

	mu       sync.RWMutex
	handlers []interface{}
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisher{log: log}
}

// MatchSignature reports whether handler is a func whose parameters accept
// args positionally. Interface parameters match any implementing argument;
// nil arguments match pointer and interface parameters.
func MatchSignature(handler interface{}, args []interface{}) bool {
	t := reflect.TypeOf(handler)
	if t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		param := t.In(i)
		if arg == nil {
			if param.Kind() != reflect.Interface && param.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if param.Kind() == reflect.Interface {
			if !argType.Implements(param) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(param) {
			return false
		}
	}
	return true
}

func (p *publisher) Publish(args ...interface{}) {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		in[i] = reflect.ValueOf(arg)
	}

	p.mu.RLock()
	handlers := append([]interface{}(nil), p.handlers...)
	p.mu.RUnlock()

	handled := false
	for _, handler := range handlers {
		if !MatchSignature(handler, args) {
			continue
		}
		if p.call(reflect.ValueOf(handler), in) {
			handled = true
		}
	}
	if !handled && p.log != nil {
		p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", in)
	}
}

// call invokes one handler and reports whether it completed without
// panicking.
func (p *publisher) call(fn reflect.Value, in []reflect.Value) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Errorf("eventbus: handler %s panicked: %v", fn.Type().String(), r)
			}
		}
	}()
	fn.Call(in)
	return true
}

func (p *publisher) Subscribe(handler interface{}) {
	if reflect.TypeOf(handler).Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	p.handlers = append(p.handlers, handler)
	p.mu.Unlock()
}

func (p *publisher) Unsubscribe(handler interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := reflect.ValueOf(handler).Pointer()
	for i, h := range p.handlers {
		if reflect.ValueOf(h).Pointer() == target {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return
		}
	}
}

func (p *publisher) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}
