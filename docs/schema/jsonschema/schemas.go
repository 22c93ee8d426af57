// Package jsonschema embeds and compiles the JSON Schemas request bodies are
// checked against before they are decoded.
package jsonschema

import (
	"bytes"
	"embed"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	BulkSchema = "bulk.schema.json"
	UserSchema = "user.schema.json"

	baseURL = "usergrid://schemas/"
)

//go:embed *.schema.json
var files embed.FS

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	names := []string{BulkSchema, UserSchema}
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			compileErr = errors.Wrapf(err, "read %s", name)
			return
		}
		if err := c.AddResource(baseURL+name, bytes.NewReader(data)); err != nil {
			compileErr = errors.Wrapf(err, "add %s", name)
			return
		}
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := c.Compile(baseURL + name)
		if err != nil {
			compileErr = errors.Wrapf(err, "compile %s", name)
			return
		}
		out[name] = s
	}
	compiled = out
}

// Schema returns the compiled schema stored under name.
func Schema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return nil, compileErr
	}
	s, ok := compiled[name]
	if !ok {
		return nil, errors.Errorf("unknown schema %s", name)
	}
	return s, nil
}

// Validate checks an already decoded JSON value against the named schema.
func Validate(name string, v any) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	return s.Validate(v)
}

// ValidateBytes decodes data and checks it against the named schema.
func ValidateBytes(name string, data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return errors.Wrap(err, "decode json")
	}
	return Validate(name, v)
}

// Raw returns the schema document stored under name.
func Raw(name string) ([]byte, error) {
	return files.ReadFile(name)
}
