package extraction

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// invoicePayloadSchema is compiled once and used by the parser to check
// whether the model honored the instruction format. Validation failures are
// diagnostic only; the parser still salvages whatever fields it can.
var invoicePayloadSchema = mustCompilePayloadSchema()

// buildPayloadSchema returns a JSON-Schema (draft 2020-12 subset) describing
// the payload the instruction asks the model for. Amounts are allowed as
// either numbers or strings because models routinely quote them.
func buildPayloadSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date": map[string]any{
				"type":    []string{"string", "null"},
				"pattern": `^\d{4}-\d{2}-\d{2}$`,
			},
			"vendor_name": map[string]any{"type": []string{"string", "null"}},
			"total_amount": map[string]any{
				"type": []string{"number", "string", "null"},
			},
			"currency": map[string]any{"type": []string{"string", "null"}},
			"category": map[string]any{
				"type": []string{"string", "null"},
				"enum": append(toAnySlice(Categories()), nil),
			},
			"invoice_number": map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{"date", "vendor_name", "total_amount", "currency", "category"},
	}
}

func mustCompilePayloadSchema() *jsonschema.Schema {
	doc, err := json.Marshal(buildPayloadSchema())
	if err != nil {
		panic(err)
	}
	return jsonschema.MustCompileString("invoice-payload.schema.json", string(doc))
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
