package algorithm

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// analysisSchema is the minimum shape an engine response must satisfy before
// any field is trusted. Conversion still sanitizes values; the schema only
// rejects payloads that are structurally wrong.
const analysisSchema = `{
  "type": "object",
  "required": ["direction", "confidence", "price"],
  "properties": {
    "direction": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "price": {"type": "number", "exclusiveMinimum": 0},
    "indicators": {
      "type": "object",
      "properties": {
        "rsi": {"type": "number"},
        "bb_position": {"type": "number"},
        "volume_ratio": {"type": "number"}
      }
    },
    "stop_loss": {"type": "number"},
    "take_profit": {"type": "number"},
    "pattern": {"type": "string"}
  }
}`

var compiledAnalysisSchema = mustCompileSchema(analysisSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("analysis.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("analysis.json")
}
