package validation

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

//go:embed result_schema.json
var resultSchemaJSON string

// ResultSchema validates analysis result payloads.
type ResultSchema struct {
	schema *gojsonschema.Schema
}

func NewResultSchema() (*ResultSchema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("load result schema: %w", err)
	}
	return &ResultSchema{schema: schema}, nil
}

func (s *ResultSchema) ValidateResult(raw []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return domain.NewFailure(domain.CodeParse, 0, "result payload is not valid JSON", false).WithCause(err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	details, _ := json.Marshal(map[string]any{"violations": problems})
	return domain.NewFailure(domain.CodeParse, 0,
		"result payload does not match schema: "+strings.Join(problems, "; "), false).WithDetails(details)
}
