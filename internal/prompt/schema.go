package prompt

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// schemaFor reflects a Go artifact struct into a JSON Schema string that is
// embedded verbatim in prompts. Reflection keeps the schema text and the
// validation structs from drifting apart.
func schemaFor[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	schema := reflector.Reflect(&v)
	// The envelope fields ($schema, $id) are reflection noise, not contract.
	schema.Version = ""
	schema.ID = ""

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		// Reflection over our own package-level types cannot fail at runtime.
		panic(err)
	}
	return string(data)
}
