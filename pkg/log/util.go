package log

import (
	"fmt"

	"go.uber.org/zap"
)

// toFields converts a loosely-typed argument list into zap fields.
// Accepted shapes, in order of precedence:
//   - a zap.Field is passed through unchanged
//   - a bare error becomes zap.Error(err)
//   - everything else pairs up as key/value
//
// A trailing unpaired value and non-string keys are kept rather than
// dropped, under synthetic keys, so no call site silently loses data.
func toFields(args ...any) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2+1)

	for i := 0; i < len(args); {
		switch a := args[i].(type) {
		case zap.Field:
			fields = append(fields, a)
			i++
		case error:
			fields = append(fields, zap.Error(a))
			i++
		default:
			if i == len(args)-1 {
				fields = append(fields, zap.Any(fmt.Sprintf("arg#%d", i), a))
				i++
				continue
			}
			fields = append(fields, pairField(a, args[i+1], i))
			i += 2
		}
	}

	return fields
}

func pairField(key, val any, pos int) zap.Field {
	keyStr, ok := key.(string)
	if !ok {
		return zap.Any(fmt.Sprintf("invalid_key_%d", pos/2), map[string]any{
			"key":   key,
			"value": val,
		})
	}

	// zap.Any covers every primitive; only cases it would flatten
	// unhelpfully need explicit handling.
	switch v := val.(type) {
	case error:
		return zap.NamedError(keyStr, v)
	case fmt.Stringer:
		return zap.String(keyStr, v.String())
	case []byte:
		return zap.Binary(keyStr, v)
	default:
		return zap.Any(keyStr, v)
	}
}
