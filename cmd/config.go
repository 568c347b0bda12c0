package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// YAMLParser is an ff.ConfigFileParser for flat YAML documents:
//
//	authority: https://accounts.example.com
//	client-id: my-client
//	v: true
//
// Sequence values set the flag once per element.
func YAMLParser(r io.Reader, set func(name, value string) error) error {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse yaml config: %w", err)
	}
	for key, val := range doc {
		values, err := yamlValues(key, val)
		if err != nil {
			return err
		}
		for _, v := range values {
			if err := set(key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func yamlValues(key string, val any) ([]string, error) {
	switch v := val.(type) {
	case nil:
		return []string{""}, nil
	case string:
		return []string{v}, nil
	case bool:
		return []string{strconv.FormatBool(v)}, nil
	case int:
		return []string{strconv.Itoa(v)}, nil
	case float64:
		return []string{strconv.FormatFloat(v, 'g', -1, 64)}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := yamlValues(key, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("config key %q: unsupported yaml value of type %T", key, val)
	}
}
