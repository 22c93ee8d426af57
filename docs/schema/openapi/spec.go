// Package openapi embeds the usergrid OpenAPI document served at /api/doc.
package openapi

import (
	"context"
	_ "embed"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"
)

// UserGridSpec contains the OpenAPI document in YAML.
//
//go:embed usergrid.yaml
var UserGridSpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), UserGridSpec...)
}

// Load parses and validates the embedded document.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(Spec())
	if err != nil {
		return nil, errors.Wrap(err, "load openapi document")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(err, "validate openapi document")
	}
	return doc, nil
}

// JSON renders the validated document as JSON.
func JSON(ctx context.Context) ([]byte, error) {
	doc, err := Load(ctx)
	if err != nil {
		return nil, err
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encode openapi document")
	}
	return data, nil
}
