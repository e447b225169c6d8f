package server

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidBatch is returned for batch bodies that do not match the schema.
var ErrInvalidBatch = errors.New("invalid batch request")

//go:embed schema/batch.json
var batchSchema []byte

type batchValidator struct {
	schema *gojsonschema.Schema
}

func newBatchValidator() (*batchValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(batchSchema))
	if err != nil {
		return nil, fmt.Errorf("compile batch schema: %w", err)
	}

	return &batchValidator{schema: schema}, nil
}

func (v *batchValidator) validate(body []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBatch, err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidBatch, strings.Join(msgs, "; "))
}
