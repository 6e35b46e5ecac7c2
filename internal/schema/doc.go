// Package schema defines the Todo entity and the formats it is stored in
// outside the database.
//
// # Todo Files
//
// Watch mode and per-file exports keep one JSON file per todo, named
// {id}.json:
//
//	{
//	  "id": 1732960000000,
//	  "name": "Buy milk",
//	  "description": "2 litres",
//	  "created_at": "2024-11-30T10:26:40Z",
//	  "is_completed": false
//	}
//
// # Documents
//
// Whole-list exports wrap todos in a Document, encoded as JSON, YAML or
// TOML:
//
//	var buf bytes.Buffer
//	err := schema.Encode(&buf, schema.FormatYAML, todos)
//
//	todos, err := schema.Decode(f, schema.FormatTOML)
//
// Decode validates every todo and fails on the first invalid one, so an
// import is all-or-nothing.
package schema
