package remoting

import (
	"fmt"
	"reflect"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// -------------------------------------------------------------------------
// Parameter Casting
// -------------------------------------------------------------------------

// castArgs coerces the decoded argument list onto the declared
// parameter types of an invocable. Missing trailing arguments become
// zero values; surplus arguments are rejected.
//
// Positions declared as any (or another interface) pass the decoded
// value through untouched; concrete positions run the full coercion,
// including record→struct construction and per-element casting of
// typed slices. Aliased classes already decoded into their registered
// Go types, so a position declared as the registered type matches
// directly.
func castArgs(params []reflect.Type, args []amf.Value) ([]reflect.Value, error) {
	if len(args) > len(params) {
		return nil, fmt.Errorf("%d arguments for %d parameters: %w",
			len(args), len(params), ErrArgumentCount)
	}

	in := make([]reflect.Value, len(params))
	for i, pt := range params {
		var arg amf.Value
		if i < len(args) {
			arg = args[i]
		}

		if pt.Kind() == reflect.Interface {
			// Untyped position: pass through. reflect.Call rejects the
			// zero Value, so nil becomes a typed zero.
			if arg == nil {
				in[i] = reflect.Zero(pt)
			} else {
				in[i] = reflect.ValueOf(arg)
			}
			continue
		}

		v, err := amf.CoerceValue(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("parameter %d (%s): %w", i, pt, err)
		}
		in[i] = v
	}
	return in, nil
}
