package jsonrpc2

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidHandlerSource is returned when a handler source is neither a
// mapping of names to funcs nor a value with callable methods.
var ErrInvalidHandlerSource = errors.New("methods must be a mapping or an object exposing callable members")

// PrivatePrefix marks handler names that are never remotely callable.
const PrivatePrefix = "_"

// Provider is a capability which lists its own callable handlers. Values are
// funcs, as accepted by NewMethod.
type Provider interface {
	RPCMethods() map[string]interface{}
}

// HandlerSource produces a set of named methods. Use Flat, Capability or
// Receiver to construct one, or Source to pick one for an arbitrary value.
type HandlerSource interface {
	methods() (map[string]Method, error)
}

// Flat is a HandlerSource from a plain name to func mapping.
type Flat map[string]interface{}

func (src Flat) methods() (map[string]Method, error) {
	if src == nil {
		return nil, ErrInvalidHandlerSource
	}
	return funcMethods(src)
}

// Capability returns a HandlerSource backed by a Provider.
func Capability(p Provider) HandlerSource {
	return capability{p}
}

type capability struct {
	Provider
}

func (src capability) methods() (map[string]Method, error) {
	if src.Provider == nil {
		return nil, ErrInvalidHandlerSource
	}
	if v := reflect.ValueOf(src.Provider); v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, ErrInvalidHandlerSource
	}
	return funcMethods(src.RPCMethods())
}

// Receiver returns a HandlerSource exposing the exported methods of rcvr,
// including methods promoted from embedded types. Names get the prefix and a
// lowercased first letter, so (*Fruit).Apple with prefix "fruit_" is
// registered as "fruit_apple".
func Receiver(prefix string, rcvr interface{}) HandlerSource {
	return receiver{prefix: prefix, rcvr: rcvr}
}

type receiver struct {
	prefix string
	rcvr   interface{}
}

func (src receiver) methods() (map[string]Method, error) {
	methods, err := Methods(src.rcvr)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, ErrInvalidHandlerSource
	}
	named := make(map[string]Method, len(methods))
	var buf strings.Builder
	for name, m := range methods {
		first, size := utf8.DecodeRuneInString(name)
		buf.WriteString(src.prefix)
		buf.WriteRune(unicode.ToLower(first))
		buf.WriteString(name[size:])
		named[buf.String()] = m
		buf.Reset()
	}
	return named, nil
}

// single is a HandlerSource for one explicitly named method.
type single struct {
	name   string
	method Method
}

func (src single) methods() (map[string]Method, error) {
	return map[string]Method{src.name: src.method}, nil
}

func funcMethods(funcs map[string]interface{}) (map[string]Method, error) {
	methods := make(map[string]Method, len(funcs))
	for name, fn := range funcs {
		m, err := NewMethod(fn)
		if err != nil {
			return nil, fmt.Errorf("method %q: %s", name, err)
		}
		methods[name] = m
	}
	return methods, nil
}

// Source resolves an arbitrary value into a HandlerSource: a HandlerSource is
// used as is, any map with string keys becomes Flat (its values must be
// funcs), a Provider becomes a Capability, and anything with exported methods
// becomes a Receiver.
func Source(v interface{}) (HandlerSource, error) {
	switch src := v.(type) {
	case nil:
		return nil, ErrInvalidHandlerSource
	case HandlerSource:
		return src, nil
	case map[string]interface{}:
		return Flat(src), nil
	case Provider:
		return Capability(src), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map {
		if rv.Type().Key().Kind() != reflect.String {
			return nil, ErrInvalidHandlerSource
		}
		flat := make(Flat, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			flat[iter.Key().String()] = iter.Value().Interface()
		}
		return flat, nil
	}
	if reflect.TypeOf(v).NumMethod() == 0 {
		return nil, ErrInvalidHandlerSource
	}
	return Receiver("", v), nil
}

// Registry is an immutable mapping of method names to Methods. A nil
// *Registry has no methods.
type Registry struct {
	methods map[string]Method
}

// NewRegistry builds a Registry from the given sources. Duplicate names
// across sources are an error; names starting with PrivatePrefix are
// skipped.
func NewRegistry(sources ...HandlerSource) (*Registry, error) {
	r := &Registry{methods: map[string]Method{}}
	for _, src := range sources {
		if src == nil {
			return nil, ErrInvalidHandlerSource
		}
		methods, err := src.methods()
		if err != nil {
			return nil, err
		}
		for name, m := range methods {
			if name == "" || strings.HasPrefix(name, PrivatePrefix) {
				continue
			}
			if _, ok := r.methods[name]; ok {
				return nil, fmt.Errorf("duplicate method name: %s", name)
			}
			r.methods[name] = m
		}
	}
	return r, nil
}

// Names returns the sorted list of callable method names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the method registered under name.
func (r *Registry) Lookup(name string) (Method, bool) {
	if r == nil {
		return Method{}, false
	}
	m, ok := r.methods[name]
	return m, ok
}

// Invoke calls the named method with params. Unknown names are an error.
func (r *Registry) Invoke(ctx context.Context, name string, params Params) (interface{}, error) {
	m, ok := r.Lookup(name)
	if !ok {
		return nil, &ErrResponse{
			Code:    ErrCodeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", name),
		}
	}
	return m.CallParams(ctx, params)
}

// Handle answers a call message. It always returns a reply message carrying
// the request's ID.
func (r *Registry) Handle(ctx context.Context, req *Message) *Message {
	if req.Request == nil {
		return newReply(req.ID, nil, &ErrResponse{
			Code:    ErrCodeInvalidRequest,
			Message: "missing method",
		})
	}
	params, err := DecodeParams(req.Params)
	if err != nil {
		return newReply(req.ID, nil, &ErrResponse{
			Code:    ErrCodeInvalidParams,
			Message: err.Error(),
		})
	}
	res, err := r.Invoke(ctx, req.Method, params)
	return newReply(req.ID, res, err)
}

// NamedMethod returns a HandlerSource registering a single method of rcvr
// under name.
func NamedMethod(name string, rcvr interface{}, methodName string) (HandlerSource, error) {
	m, err := MethodByName(rcvr, methodName)
	if err != nil {
		return nil, err
	}
	return single{name: name, method: m}, nil
}
