package ai

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/hpungsan/moodlog/internal/mood"
)

var (
	schemaOnce sync.Once
	schemaText string
)

// analysisSchema returns the JSON schema of mood.Analysis as indented text.
func analysisSchema() string {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
			ExpandedStruct:            true,
		}
		schema := reflector.Reflect(&mood.Analysis{})
		schema.Version = ""
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			panic(err)
		}
		schemaText = string(data)
	})
	return schemaText
}
