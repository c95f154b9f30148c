package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()
var typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()

// isExported returns true of a string is an exported (upper case) name.
func isExported(name string) bool {
	rune, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(rune)
}

// funcArgTypes returns the arg types of a func, without a leading context
// argument, and whether it takes one.
func funcArgTypes(funcType reflect.Type) (argTypes []reflect.Type, hasCtx bool) {
	argNum := funcType.NumIn()
	argTypes = make([]reflect.Type, 0, argNum)
	for argPos := 0; argPos < argNum; argPos++ {
		argType := funcType.In(argPos)
		if argPos == 0 && argType == typeOfContext {
			hasCtx = true
			continue
		}
		argTypes = append(argTypes, argType)
	}
	return argTypes, hasCtx
}

// funcErrPos returns the return value index position of an error type for
// supported return layouts: (), (interface{}), (error), (interface{}, error)
func funcErrPos(funcType reflect.Type) (int, bool) {
	switch funcType.NumOut() {
	case 0:
		return -1, true
	case 1:
		if funcType.Out(0) == typeOfError {
			// Single error return value
			return 0, true
		}
		// Single non-error return value
		return -1, true
	case 2:
		if funcType.Out(1) == typeOfError {
			// Two return values, one error type
			return 1, true
		}
		// Two return values, no error type, unsupported.
		return -1, false
	}
	return -1, false
}

// NewMethod wraps a func value as a Method. The func may take a leading
// context.Context, followed by any JSON-decodable arguments.
func NewMethod(fn interface{}) (Method, error) {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func || val.IsNil() {
		return Method{}, fmt.Errorf("handler must be a func, got %T", fn)
	}
	return newMethod(val)
}

func newMethod(fn reflect.Value) (Method, error) {
	fnType := fn.Type()
	if fnType.IsVariadic() {
		return Method{}, fmt.Errorf("variadic handlers are not supported: %s", fnType)
	}
	argTypes, hasCtx := funcArgTypes(fnType)
	errPos, ok := funcErrPos(fnType)
	if !ok {
		return Method{}, fmt.Errorf("unsupported return values: %s", fnType)
	}
	return Method{
		Func:     fn,
		ArgTypes: argTypes,
		ErrPos:   errPos,
		HasCtx:   hasCtx,
	}, nil
}

// Methods returns a mapping of valid method names to Method definitions for
// an instance's receiver. Methods promoted from embedded types are included.
// Names are returned as declared, uppercase first letter.
func Methods(receiver interface{}) (map[string]Method, error) {
	if receiver == nil {
		return nil, ErrInvalidHandlerSource
	}
	kind := reflect.TypeOf(receiver)
	val := reflect.ValueOf(receiver)
	if kind.Kind() == reflect.Ptr && val.IsNil() {
		return nil, ErrInvalidHandlerSource
	}

	methods := map[string]Method{}
	for i := 0; i < kind.NumMethod(); i++ {
		method := kind.Method(i)
		if method.PkgPath != "" {
			// Skip unexported methods
			continue
		}
		m, err := newMethod(val.Method(i))
		if err != nil {
			return nil, fmt.Errorf("method %s: %s", method.Name, err)
		}
		methods[method.Name] = m
	}

	return methods, nil
}

// MethodByName returns a single exported method of a receiver.
func MethodByName(receiver interface{}, name string) (Method, error) {
	if receiver == nil {
		return Method{}, ErrInvalidHandlerSource
	}
	val := reflect.ValueOf(receiver).MethodByName(name)
	if !val.IsValid() || !isExported(name) {
		return Method{}, fmt.Errorf("method not found on %T: %s", receiver, name)
	}
	return newMethod(val)
}

// Method is the definition of a callable method.
type Method struct {
	Func     reflect.Value
	ArgTypes []reflect.Type
	ErrPos   int
	HasCtx   bool
}

// CallJSON wraps Call but supports JSON-encoded params.
func (m *Method) CallJSON(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
	params, err := DecodeParams(rawParams)
	if err != nil {
		return nil, &ErrResponse{Code: ErrCodeInvalidParams, Message: err.Error()}
	}
	return m.CallParams(ctx, params)
}

// CallParams decodes params into the method's argument types and calls it.
func (m *Method) CallParams(ctx context.Context, params Params) (interface{}, error) {
	args, err := m.decodeArgs(params)
	if err != nil {
		return nil, &ErrResponse{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid params: %s", err)}
	}
	return m.Call(ctx, args)
}

// decodeArgs asserts each argument into a value of its reflected type.
// Missing trailing positional arguments are zero values.
func (m *Method) decodeArgs(params Params) ([]reflect.Value, error) {
	values := make([]reflect.Value, 0, len(m.ArgTypes))
	switch params.Kind {
	case NamedParams:
		if len(m.ArgTypes) != 1 {
			return nil, fmt.Errorf("named params need exactly one argument, method takes %d", len(m.ArgTypes))
		}
		value := reflect.New(m.ArgTypes[0])
		if err := json.Unmarshal(params.Named, value.Interface()); err != nil {
			return nil, err
		}
		return append(values, value.Elem()), nil
	case PositionalParams:
		if len(params.Positional) > len(m.ArgTypes) {
			return nil, fmt.Errorf("too many arguments: expected %d, got %d", len(m.ArgTypes), len(params.Positional))
		}
		for i, raw := range params.Positional {
			value := reflect.New(m.ArgTypes[i])
			if err := json.Unmarshal(raw, value.Interface()); err != nil {
				return nil, fmt.Errorf("argument %d: %s", i, err)
			}
			values = append(values, value.Elem())
		}
	}
	for i := len(values); i < len(m.ArgTypes); i++ {
		values = append(values, reflect.Zero(m.ArgTypes[i]))
	}
	return values, nil
}

// Call executes the method with the given arguments. A panic inside the
// method is recovered and returned as an internal error.
func (m *Method) Call(ctx context.Context, args []reflect.Value) (result interface{}, err error) {
	if len(args) != len(m.ArgTypes) {
		return nil, fmt.Errorf("invalid number of args: expected %d, got %d", len(m.ArgTypes), len(args))
	}

	arguments := make([]reflect.Value, 0, len(args)+1)
	if m.HasCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		arguments = append(arguments, reflect.ValueOf(ctx))
	}
	arguments = append(arguments, args...)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ErrResponse{
				Code:    ErrCodeInternal,
				Message: fmt.Sprintf("handler panic: %v", r),
			}
		}
	}()
	reply := m.Func.Call(arguments)

	// Are there any return values?
	if len(reply) == 0 {
		return nil, nil
	}
	// Is there an error return value?
	if m.ErrPos >= 0 && !reply[m.ErrPos].IsNil() {
		return nil, reply[m.ErrPos].Interface().(error)
	}
	if m.ErrPos == 0 {
		// Single error return value, which is nil
		return nil, nil
	}

	// All is good, assume the first result is what we want to return
	// This supports (res), (res, err)
	return reply[0].Interface(), nil
}
