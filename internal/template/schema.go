package template

// Manifest schema, compiled once per registry. Region files are checked
// against the codec separately; the schema only guards the manifest shape.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format_version", "name", "height", "regions"],
  "additionalProperties": false,
  "properties": {
    "format_version": {"type": "integer", "const": 1},
    "name": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_-]+$"},
    "height": {"type": "integer", "minimum": 1, "maximum": 1024},
    "regions": {
      "type": "array",
      "items": {"type": "string", "pattern": "^r\\.-?[0-9]+\\.-?[0-9]+\\.region$"}
    },
    "data_points": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key", "x", "y", "z"],
        "additionalProperties": false,
        "properties": {
          "key": {"type": "string", "minLength": 1},
          "x": {"type": "integer"},
          "y": {"type": "integer"},
          "z": {"type": "integer"},
          "yaw": {"type": "integer", "minimum": -180, "maximum": 180}
        }
      }
    }
  }
}`
