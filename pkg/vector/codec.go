package vector

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// PayloadCodec translates payload maps between caller values and the
// wire-safe form a backend stores. Filters pass through the same codec so
// stored and queried representations always agree.
type PayloadCodec interface {
	Serialize(payload map[string]any) (map[string]any, error)
	Deserialize(payload map[string]any) (map[string]any, error)
}

// IdentityCodec passes payloads through untouched, for backends that
// store rich values natively.
type IdentityCodec struct{}

// Serialize returns the payload unchanged.
func (IdentityCodec) Serialize(payload map[string]any) (map[string]any, error) {
	return payload, nil
}

// Deserialize returns the payload unchanged.
func (IdentityCodec) Deserialize(payload map[string]any) (map[string]any, error) {
	return payload, nil
}

const (
	// jsonPrefix marks a payload string as codec-encoded JSON.
	jsonPrefix = "__relstore_json__:"
	// codecTagKey tags an encoded composite with its original type.
	codecTagKey = "__relstore_codec__"
)

// JSONCodec folds composite and temporal payload values into tagged JSON
// strings so backends that only store scalars round-trip them losslessly.
// Scalars pass through unchanged; a caller string that collides with the
// encoding prefix is escaped. Integers inside composites normalize to
// int64 on the way back.
type JSONCodec struct{}

// Serialize encodes every payload value that needs it.
func (c JSONCodec) Serialize(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		encoded, err := c.encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", key, err)
		}
		out[key] = encoded
	}
	return out, nil
}

// Deserialize decodes every codec-encoded payload value.
func (c JSONCodec) Deserialize(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		decoded, err := c.decodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("payload key %q: %w", key, err)
		}
		out[key] = decoded
	}
	return out, nil
}

func (c JSONCodec) encodeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return value, nil
	case string:
		if len(v) >= len(jsonPrefix) && v[:len(jsonPrefix)] == jsonPrefix {
			return c.encodeComposite(tagged("str", v))
		}
		return v, nil
	default:
		jsonable, err := toJSONable(value)
		if err != nil {
			return nil, err
		}
		return c.encodeComposite(jsonable)
	}
}

func (c JSONCodec) encodeComposite(jsonable any) (any, error) {
	raw, err := json.Marshal(jsonable)
	if err != nil {
		return nil, err
	}
	return jsonPrefix + string(raw), nil
}

func (c JSONCodec) decodeValue(value any) (any, error) {
	s, ok := value.(string)
	if !ok || len(s) < len(jsonPrefix) || s[:len(jsonPrefix)] != jsonPrefix {
		return value, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s[len(jsonPrefix):])))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return fromJSONable(decoded), nil
}

func tagged(tag string, value any) map[string]any {
	return map[string]any{codecTagKey: tag, "value": value}
}

// toJSONable lowers a Go value to a JSON-encodable tree, tagging types
// JSON cannot express.
func toJSONable(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	case time.Time:
		return tagged("datetime", v.Format(time.RFC3339Nano)), nil
	case time.Duration:
		return tagged("duration", int64(v)), nil
	case []byte:
		return tagged("bytes", base64.StdEncoding.EncodeToString(v)), nil
	case uuid.UUID:
		return tagged("uuid", v.String()), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return toJSONable(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported payload map key type %s", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			lowered, err := toJSONable(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = lowered
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			lowered, err := toJSONable(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = lowered
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported payload value type %T", value)
	}
}

// fromJSONable raises a decoded JSON tree back to Go values, resolving
// codec tags. Unknown tags come back as the raw decoded map.
func fromJSONable(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromJSONable(item)
		}
		return out
	case map[string]any:
		if tag, ok := v[codecTagKey].(string); ok && len(v) == 2 {
			if resolved, ok := resolveTag(tag, v["value"]); ok {
				return resolved
			}
		}
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = fromJSONable(item)
		}
		return out
	default:
		return value
	}
}

func resolveTag(tag string, raw any) (any, bool) {
	switch tag {
	case "str":
		if s, ok := raw.(string); ok {
			return s, true
		}
	case "datetime":
		if s, ok := raw.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t, true
			}
		}
	case "duration":
		if n, ok := raw.(json.Number); ok {
			if ns, err := n.Int64(); err == nil {
				return time.Duration(ns), true
			}
		}
	case "bytes":
		if s, ok := raw.(string); ok {
			if b, err := base64.StdEncoding.DecodeString(s); err == nil {
				return b, true
			}
		}
	case "uuid":
		if s, ok := raw.(string); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id, true
			}
		}
	}
	return nil, false
}
