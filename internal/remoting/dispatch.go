package remoting

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// -------------------------------------------------------------------------
// Dispatch Errors
// -------------------------------------------------------------------------

var (
	// ErrDuplicateName indicates a second registration of an already
	// registered qualified name. This is a configuration error and is
	// raised at registration time, never deferred to dispatch.
	ErrDuplicateName = errors.New("qualified name already registered")

	// ErrMethodNotFound indicates a dispatch target with no table entry.
	ErrMethodNotFound = errors.New("method does not exist")

	// ErrNotAFunction indicates RegisterFunction was handed a non-func.
	ErrNotAFunction = errors.New("not a function")

	// ErrNoMethods indicates RegisterService found no exported methods.
	ErrNoMethods = errors.New("service has no exported methods")

	// ErrArgumentCount indicates more arguments than the invocable's
	// parameters. Missing arguments are zero-filled; surplus is an error.
	ErrArgumentCount = errors.New("too many arguments")

	// ErrInvocablePanic wraps a panic raised inside user code.
	ErrInvocablePanic = errors.New("panic in invocable")
)

// -------------------------------------------------------------------------
// Dispatchable
// -------------------------------------------------------------------------

// Dispatchable is one invocable procedure: a reflected method bound to
// its receiver, or a registered function. FixedArgs configured at
// registration are appended to the caller's argument list before
// parameter casting.
type Dispatchable struct {
	// QualifiedName is the dispatch-table key: namespace.shortName, or
	// the bare short name when no namespace applies.
	QualifiedName string

	// ParamTypes are the declared parameter types in order.
	ParamTypes []reflect.Type

	// FixedArgs are appended to every call's argument list.
	FixedArgs []amf.Value

	fn reflect.Value
}

// Invoke casts args onto the parameter types and calls the procedure.
// A panic inside user code is recovered and surfaced as an error
// wrapping ErrInvocablePanic so sibling bodies keep dispatching.
func (d *Dispatchable) Invoke(args []amf.Value) (result amf.Value, err error) {
	merged := make([]amf.Value, 0, len(args)+len(d.FixedArgs))
	merged = append(merged, args...)
	merged = append(merged, d.FixedArgs...)

	in, err := castArgs(d.ParamTypes, merged)
	if err != nil {
		return nil, fmt.Errorf("cast arguments for %s: %w", d.QualifiedName, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v: %w", d.QualifiedName, r, ErrInvocablePanic)
		}
	}()

	out := d.fn.Call(in)
	return splitResults(out)
}

// splitResults maps Go return shapes onto (value, error): none, value,
// error, or value + error.
func splitResults(out []reflect.Value) (amf.Value, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type() == errType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// -------------------------------------------------------------------------
// Resolver — deferred service loading
// -------------------------------------------------------------------------

// ServiceResolver loads a service instance for a source class named in
// a request body that has no dispatch-table entry. The resolved
// instance is registered and the lookup retried once; a second miss is
// a method-not-found error.
type ServiceResolver interface {
	Resolve(source string) (any, error)
}

// -------------------------------------------------------------------------
// Table
// -------------------------------------------------------------------------

// Table holds the qualifiedName → Dispatchable mapping. Registrations
// normally complete before serving; runtime mutation is guarded by the
// internal RWMutex so the resolver path stays safe.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*Dispatchable
	logger  *slog.Logger
}

// NewTable returns an empty dispatch table.
func NewTable(logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries: make(map[string]*Dispatchable),
		logger:  logger.With(slog.String("component", "dispatch")),
	}
}

// RegisterService reflects every exported method of svc into the table.
// The namespace defaults to the service's type name, so a *CartService
// method Checkout registers as "CartService.Checkout".
func (t *Table) RegisterService(svc any, namespace string, fixedArgs ...amf.Value) error {
	rv := reflect.ValueOf(svc)
	rt := rv.Type()

	if namespace == "" {
		base := rt
		for base.Kind() == reflect.Pointer {
			base = base.Elem()
		}
		namespace = base.Name()
	}

	if rt.NumMethod() == 0 {
		return fmt.Errorf("register %s: %w", namespace, ErrNoMethods)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		bound := rv.Method(i)

		params := make([]reflect.Type, 0, bound.Type().NumIn())
		for p := 0; p < bound.Type().NumIn(); p++ {
			params = append(params, bound.Type().In(p))
		}

		qualified := namespace + "." + m.Name
		if err := t.add(&Dispatchable{
			QualifiedName: qualified,
			ParamTypes:    params,
			FixedArgs:     fixedArgs,
			fn:            bound,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFunction registers a bare function under name, optionally
// prefixed by a namespace.
func (t *Table) RegisterFunction(name string, fn any, namespace string, fixedArgs ...amf.Value) error {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return fmt.Errorf("register %q: %T: %w", name, fn, ErrNotAFunction)
	}

	params := make([]reflect.Type, 0, rv.Type().NumIn())
	for p := 0; p < rv.Type().NumIn(); p++ {
		params = append(params, rv.Type().In(p))
	}

	qualified := name
	if namespace != "" {
		qualified = namespace + "." + name
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(&Dispatchable{
		QualifiedName: qualified,
		ParamTypes:    params,
		FixedArgs:     fixedArgs,
		fn:            rv,
	})
}

// add installs one entry, rejecting duplicates.
func (t *Table) add(d *Dispatchable) error {
	if _, ok := t.entries[d.QualifiedName]; ok {
		return fmt.Errorf("%q: %w", d.QualifiedName, ErrDuplicateName)
	}
	t.entries[d.QualifiedName] = d
	t.logger.Debug("registered invocable",
		slog.String("qualified_name", d.QualifiedName),
		slog.Int("params", len(d.ParamTypes)),
	)
	return nil
}

// Lookup returns the entry for a qualified name.
func (t *Table) Lookup(qualifiedName string) (*Dispatchable, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.entries[qualifiedName]
	return d, ok
}

// Names returns all registered qualified names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.entries))
	for n := range t.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered invocables.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
