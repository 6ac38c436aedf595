package core

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Field codecs translate between struct field values and driver values.
// The json tag option stores composite fields as JSON text; everything
// else passes through with scan-style coercion on the way back.

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
)

// timeLayouts are the formats drivers commonly hand back for TIMESTAMP
// columns stored as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func derefStruct(obj any) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil record", ErrUsage)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: record must be a struct, got %T", ErrUsage, obj)
	}
	return v, nil
}

// fieldValue reads obj's value for one column, applying the field codec.
func (m *ModelMetadata) fieldValue(obj any, f *FieldInfo) (any, error) {
	sv, err := derefStruct(obj)
	if err != nil {
		return nil, err
	}
	fv := sv.FieldByIndex(f.Path)
	return encodeFieldValue(f, fv)
}

// columnValue reads obj's value for the named column.
func (m *ModelMetadata) columnValue(obj any, column string) (any, error) {
	f, ok := m.Fields[column]
	if !ok {
		return nil, fmt.Errorf("%w: unknown column %q on %s", ErrUsage, column, m.Type.Name())
	}
	return m.fieldValue(obj, f)
}

// extractValues reads every mapped column of obj.
func (m *ModelMetadata) extractValues(obj any) (map[string]any, error) {
	sv, err := derefStruct(obj)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(m.fieldOrder))
	for _, f := range m.fieldOrder {
		v, err := encodeFieldValue(f, sv.FieldByIndex(f.Path))
		if err != nil {
			return nil, err
		}
		values[f.Column] = v
	}
	return values, nil
}

// columnIsZero reports whether obj holds the zero value for column.
func (m *ModelMetadata) columnIsZero(obj any, column string) (bool, error) {
	f, ok := m.Fields[column]
	if !ok {
		return false, fmt.Errorf("%w: unknown column %q on %s", ErrUsage, column, m.Type.Name())
	}
	sv, err := derefStruct(obj)
	if err != nil {
		return false, err
	}
	return sv.FieldByIndex(f.Path).IsZero(), nil
}

// setColumnValue writes a driver value into obj's field for column,
// decoding and coercing as needed.
func (m *ModelMetadata) setColumnValue(obj any, column string, value any) error {
	f, ok := m.Fields[column]
	if !ok {
		return fmt.Errorf("%w: unknown column %q on %s", ErrUsage, column, m.Type.Name())
	}
	sv, err := derefStruct(obj)
	if err != nil {
		return err
	}
	return decodeFieldValue(f, sv.FieldByIndex(f.Path), value)
}

// applyRow maps a result row onto obj. Columns absent from the row keep
// the field's current value.
func (m *ModelMetadata) applyRow(obj any, row Row) error {
	sv, err := derefStruct(obj)
	if err != nil {
		return err
	}
	for _, f := range m.fieldOrder {
		value, ok := row[f.Column]
		if !ok {
			continue
		}
		if err := decodeFieldValue(f, sv.FieldByIndex(f.Path), value); err != nil {
			return err
		}
	}
	return nil
}

// newRecord allocates a fresh record pointer for this model.
func (m *ModelMetadata) newRecord() any {
	return reflect.New(m.Type).Interface()
}

func encodeFieldValue(f *FieldInfo, fv reflect.Value) (any, error) {
	if f.JSON {
		if fv.IsZero() && f.Nullable {
			return nil, nil
		}
		raw, err := json.Marshal(fv.Interface())
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrUsage, f.Column, err)
		}
		return string(raw), nil
	}
	if f.Nullable && fv.IsNil() {
		return nil, nil
	}
	if fv.Kind() == reflect.Pointer {
		return fv.Elem().Interface(), nil
	}
	return fv.Interface(), nil
}

func decodeFieldValue(f *FieldInfo, fv reflect.Value, value any) error {
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	// Directly assignable values (caller-supplied field values rather
	// than driver results) bypass the codec.
	if rv := reflect.ValueOf(value); rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}
	if f.JSON {
		var raw []byte
		switch v := value.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return fmt.Errorf("%w: column %q: expected JSON text, got %T", ErrUsage, f.Column, value)
		}
		target := reflect.New(fv.Type())
		if err := json.Unmarshal(raw, target.Interface()); err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrUsage, f.Column, err)
		}
		fv.Set(target.Elem())
		return nil
	}
	return coerceAssign(fv, value, f.Column)
}

// coerceAssign bridges the gap between what drivers return (int64,
// float64, bool, []byte, string, time.Time) and the field's declared type.
func coerceAssign(fv reflect.Value, value any, column string) error {
	if fv.Kind() == reflect.Pointer {
		target := reflect.New(fv.Type().Elem())
		if err := coerceAssign(target.Elem(), value, column); err != nil {
			return err
		}
		fv.Set(target)
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(fv.Type()) {
		fv.Set(rv)
		return nil
	}

	if fv.Addr().Type().Implements(scannerType) {
		if err := fv.Addr().Interface().(sql.Scanner).Scan(value); err != nil {
			return fmt.Errorf("%w: column %q: %v", ErrUsage, column, err)
		}
		return nil
	}

	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if isNumericKind(rv.Kind()) && rv.Type().ConvertibleTo(fv.Type()) {
			fv.Set(rv.Convert(fv.Type()))
			return nil
		}
	case reflect.Bool:
		if isNumericKind(rv.Kind()) {
			fv.SetBool(rv.Convert(reflect.TypeOf(int64(0))).Int() != 0)
			return nil
		}
	case reflect.String:
		switch v := value.(type) {
		case []byte:
			fv.SetString(string(v))
			return nil
		case string:
			fv.SetString(v)
			return nil
		}
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			switch v := value.(type) {
			case []byte:
				fv.SetBytes(append([]byte(nil), v...))
				return nil
			case string:
				fv.SetBytes([]byte(v))
				return nil
			}
		}
	}

	if fv.Type() == timeType {
		var text string
		switch v := value.(type) {
		case string:
			text = v
		case []byte:
			text = string(v)
		}
		if text != "" {
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, text); err == nil {
					fv.Set(reflect.ValueOf(t))
					return nil
				}
			}
		}
	}

	return fmt.Errorf("%w: column %q: cannot assign %T to %s", ErrUsage, column, value, fv.Type())
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
