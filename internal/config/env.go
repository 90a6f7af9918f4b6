package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// applyEnv walks v and overrides every field carrying an `env` tag whose
// variable (prefix + tag) is set. Nested structs are walked recursively.
func applyEnv(v reflect.Value, prefix string) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := range v.NumField() {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if fieldVal.Kind() == reflect.Struct {
			if err := applyEnv(fieldVal, prefix); err != nil {
				return err
			}

			continue
		}

		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}

		envKey := prefix + tag
		envVal, ok := os.LookupEnv(envKey)
		if !ok {
			continue
		}

		if err := convert(envVal, fieldVal); err != nil {
			return &FieldError{Path: field.Name, Tag: "env", Value: envVal, Err: err}
		}
	}

	return nil
}

// convert converts a string value to the target's type.
func convert(value string, target reflect.Value) error {
	if target.CanAddr() {
		switch ptr := target.Addr().Interface().(type) {
		case *Duration:
			d, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				return err
			}
			*ptr = Duration(d)

			return nil
		case *ByteSize:
			n, err := parseByteSize(value)
			if err != nil {
				return err
			}
			*ptr = ByteSize(n)

			return nil
		}
	}

	//nolint:exhaustive // Only the kinds used by Config need handling
	switch target.Kind() {
	case reflect.String:
		target.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		target.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return err
		}
		if target.OverflowInt(n) {
			return fmt.Errorf("value %s overflows %s", value, target.Type())
		}
		target.SetInt(n)
	case reflect.Slice:
		return convertSlice(value, target)
	default:
		return fmt.Errorf("unsupported type: %s", target.Kind())
	}

	return nil
}

func convertSlice(value string, target reflect.Value) error {
	if strings.TrimSpace(value) == "" {
		target.Set(reflect.MakeSlice(target.Type(), 0, 0))
		return nil
	}

	reader := csv.NewReader(strings.NewReader(value))
	reader.TrimLeadingSpace = true
	parts, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to parse csv slice: %w", err)
	}

	slice := reflect.MakeSlice(target.Type(), len(parts), len(parts))
	for i, part := range parts {
		if err := convert(part, slice.Index(i)); err != nil {
			return err
		}
	}
	target.Set(slice)

	return nil
}
