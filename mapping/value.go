/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mapping

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/cockroachdb/apd/v3"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

	// decimal128 precision
	decimalContext = apd.BaseContext.WithPrecision(34)
)

// Get returns the value of column name on record. Fields behind a nil
// embedded pointer read as nil.
func (t *Table) Get(record interface{}, name string) (interface{}, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	f, err := t.field(record, col, false)
	if err != nil || !f.IsValid() {
		return nil, err
	}
	return f.Interface(), nil
}

// Set assigns value to column name on record, converting where the
// conversion is lossless.
func (t *Table) Set(record interface{}, name string, value interface{}) error {
	col, err := t.Column(name)
	if err != nil {
		return err
	}
	f, err := t.field(record, col, true)
	if err != nil {
		return err
	}
	if err := assign(f, value); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, t.Name, col.Name, err)
	}
	return nil
}

// IsNull reports whether column name holds NULL on record.
func (t *Table) IsNull(record interface{}, name string) (bool, error) {
	col, err := t.Column(name)
	if err != nil {
		return false, err
	}
	f, err := t.field(record, col, false)
	if err != nil {
		return false, err
	}
	return isNull(f, col), nil
}

// Shift adds sign*delta to the numeric column name on record.
func (t *Table) Shift(record interface{}, name string, delta interface{}, sign int) error {
	col, err := t.Column(name)
	if err != nil {
		return err
	}
	if !col.IsNumeric() {
		return fmt.Errorf("%w: %s.%s is %s", ErrNotNumeric, t.Name, col.Name, col.Type)
	}
	f, err := t.field(record, col, false)
	if err != nil {
		return err
	}
	if isNull(f, col) {
		return fmt.Errorf("%w: %s.%s", ErrNullValue, t.Name, col.Name)
	}
	target := f
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	if isNullWrapper(target.Type()) {
		target = target.Field(0)
	}
	if err := shift(target, col.Kind, delta, sign); err != nil {
		return fmt.Errorf("%s.%s: %w", t.Name, col.Name, err)
	}
	return nil
}

// CheckDelta reports whether delta converts losslessly to the column kind.
func (c *Column) CheckDelta(delta interface{}) error {
	var err error
	switch c.Kind {
	case KindInteger, KindUnsigned:
		_, err = toInt64(delta)
	case KindFloat:
		_, err = toFloat64(delta)
	case KindDecimal:
		_, err = toDecimal(delta)
	default:
		return fmt.Errorf("%w: %s is %s", ErrNotNumeric, c.Name, c.Type)
	}
	if err != nil {
		return fmt.Errorf("%w: delta for %s: %v", ErrInvalidValue, c.Name, err)
	}
	return nil
}

func (t *Table) field(record interface{}, col *Column, alloc bool) (reflect.Value, error) {
	v := reflect.ValueOf(record)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Type() != t.Type {
		return reflect.Value{}, fmt.Errorf("%w: expected non-nil *%s, got %T", ErrNotStruct, t.Type, record)
	}
	v = v.Elem()
	for i, idx := range col.index {
		if i > 0 && v.Kind() == reflect.Ptr {
			if v.IsNil() {
				if !alloc {
					return reflect.Value{}, nil
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(idx)
	}
	return v, nil
}

func isNull(f reflect.Value, col *Column) bool {
	if !f.IsValid() {
		return true
	}
	switch f.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		if f.IsNil() {
			return true
		}
	}
	if isNullWrapper(f.Type()) {
		return !f.FieldByName("Valid").Bool()
	}
	if col.NullZero && f.IsZero() {
		return true
	}
	if valuer, ok := f.Interface().(driver.Valuer); ok {
		v, err := valuer.Value()
		return err == nil && v == nil
	}
	return false
}

func assign(dst reflect.Value, value interface{}) error {
	if !dst.CanSet() {
		return errors.New("field is not settable")
	}
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)
	if src.Kind() == reflect.Ptr && !src.Type().AssignableTo(dst.Type()) {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return assign(dst, src.Elem().Interface())
	}
	if dst.Type() == decimalType {
		d, err := toDecimal(value)
		if err != nil {
			return err
		}
		dst.Addr().Interface().(*apd.Decimal).Set(d)
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if isNullWrapper(dst.Type()) {
		if err := assign(dst.Field(0), value); err != nil {
			return err
		}
		dst.FieldByName("Valid").SetBool(true)
		return nil
	}
	if reflect.PointerTo(dst.Type()).Implements(scannerType) {
		return dst.Addr().Interface().(sql.Scanner).Scan(scanSource(src))
	}
	if out, ok := convert(src, dst.Type()); ok {
		dst.Set(out)
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
}

// convert handles same-kind conversions (named types) and lossless numeric
// conversions between kinds.
func convert(src reflect.Value, typ reflect.Type) (reflect.Value, bool) {
	if src.Kind() == typ.Kind() && src.Type().ConvertibleTo(typ) {
		return src.Convert(typ), true
	}
	if !isNumber(src.Kind()) || !isNumber(typ.Kind()) {
		return reflect.Value{}, false
	}
	if isInt(src.Kind()) && isUint(typ.Kind()) && src.Int() < 0 {
		return reflect.Value{}, false
	}
	out := src.Convert(typ)
	if isUint(src.Kind()) && isInt(typ.Kind()) && out.Int() < 0 {
		return reflect.Value{}, false
	}
	if out.Convert(src.Type()).Interface() != src.Interface() {
		return reflect.Value{}, false
	}
	return out, true
}

func scanSource(src reflect.Value) interface{} {
	switch {
	case isInt(src.Kind()):
		return src.Int()
	case isUint(src.Kind()):
		if u := src.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return strconv.FormatUint(src.Uint(), 10)
	case isFloat(src.Kind()):
		return src.Float()
	case src.Kind() == reflect.String:
		return src.String()
	case src.Kind() == reflect.Bool:
		return src.Bool()
	}
	return src.Interface()
}

func shift(target reflect.Value, kind Kind, delta interface{}, sign int) error {
	switch kind {
	case KindInteger:
		d, err := toInt64(delta)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		cur := target.Int()
		var res int64
		if sign < 0 {
			res = cur - d
			if (d > 0 && res > cur) || (d < 0 && res < cur) {
				return ErrOverflow
			}
		} else {
			res = cur + d
			if (d > 0 && res < cur) || (d < 0 && res > cur) {
				return ErrOverflow
			}
		}
		if target.OverflowInt(res) {
			return ErrOverflow
		}
		target.SetInt(res)
	case KindUnsigned:
		d, err := toInt64(delta)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		cur := target.Uint()
		if sign < 0 && d == math.MinInt64 {
			res := cur + 1<<63
			if res < cur || target.OverflowUint(res) {
				return ErrOverflow
			}
			target.SetUint(res)
			return nil
		}
		if sign < 0 {
			d = -d
		}
		var res uint64
		if d >= 0 {
			res = cur + uint64(d)
			if res < cur || target.OverflowUint(res) {
				return ErrOverflow
			}
		} else {
			m := uint64(-(d + 1)) + 1
			if m > cur {
				return ErrOverflow
			}
			res = cur - m
		}
		target.SetUint(res)
	case KindFloat:
		d, err := toFloat64(delta)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		cur := target.Float()
		res := cur + float64(sign)*d
		// OverflowFloat never fires for float64, finite inputs must stay finite
		if (math.IsInf(res, 0) && !math.IsInf(cur, 0) && !math.IsInf(d, 0)) || target.OverflowFloat(res) {
			return ErrOverflow
		}
		target.SetFloat(res)
	case KindDecimal:
		d, err := toDecimal(delta)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		cur := target.Addr().Interface().(*apd.Decimal)
		res := new(apd.Decimal)
		if sign < 0 {
			_, err = decimalContext.Sub(res, cur, d)
		} else {
			_, err = decimalContext.Add(res, cur, d)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOverflow, err)
		}
		cur.Set(res)
	default:
		return ErrNotNumeric
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch d := v.(type) {
	case apd.Decimal:
		return d.Int64()
	case *apd.Decimal:
		if d == nil {
			return 0, errors.New("nil decimal")
		}
		return d.Int64()
	}
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return 0, errors.New("nil delta")
	case isInt(rv.Kind()):
		return rv.Int(), nil
	case isUint(rv.Kind()):
		if rv.Uint() > math.MaxInt64 {
			return 0, fmt.Errorf("%d exceeds int64", rv.Uint())
		}
		return int64(rv.Uint()), nil
	case isFloat(rv.Kind()):
		f := rv.Float()
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("%T is not a number", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch d := v.(type) {
	case apd.Decimal:
		return d.Float64()
	case *apd.Decimal:
		if d == nil {
			return 0, errors.New("nil decimal")
		}
		return d.Float64()
	}
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return 0, errors.New("nil delta")
	case isInt(rv.Kind()):
		return float64(rv.Int()), nil
	case isUint(rv.Kind()):
		return float64(rv.Uint()), nil
	case isFloat(rv.Kind()):
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("%T is not a number", v)
}

func toDecimal(v interface{}) (*apd.Decimal, error) {
	switch d := v.(type) {
	case apd.Decimal:
		return new(apd.Decimal).Set(&d), nil
	case *apd.Decimal:
		if d == nil {
			return nil, errors.New("nil decimal")
		}
		return new(apd.Decimal).Set(d), nil
	case apd.NullDecimal:
		if !d.Valid {
			return nil, errors.New("null decimal")
		}
		return new(apd.Decimal).Set(&d.Decimal), nil
	case string:
		res, _, err := apd.NewFromString(d)
		return res, err
	case []byte:
		res, _, err := apd.NewFromString(string(d))
		return res, err
	}
	rv := reflect.ValueOf(v)
	switch {
	case !rv.IsValid():
		return nil, errors.New("nil delta")
	case isInt(rv.Kind()):
		return apd.New(rv.Int(), 0), nil
	case isUint(rv.Kind()):
		res, _, err := apd.NewFromString(strconv.FormatUint(rv.Uint(), 10))
		return res, err
	case isFloat(rv.Kind()):
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		res, _, err := apd.NewFromString(strconv.FormatFloat(rv.Float(), 'g', -1, bits))
		return res, err
	case rv.Kind() == reflect.String:
		res, _, err := apd.NewFromString(rv.String())
		return res, err
	}
	return nil, fmt.Errorf("%T is not a number", v)
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k)
}
