package interview

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"

	"github.com/sells-group/interview-cli/internal/model"
)

// extractionPayload is the structured result the reasoning service must
// return for an extraction call. Both keys are required.
type extractionPayload struct {
	Extracted    []proposal `json:"extracted" jsonschema:"description=Answers found in the latest founder message"`
	CannotAnswer []string   `json:"cannot_answer" jsonschema:"description=Field names the founder said they cannot answer in the latest message"`
}

// proposal is one proposed answer for a field.
type proposal struct {
	Field      string           `json:"field" jsonschema:"description=Exact field name from the fields we need"`
	Value      answerText       `json:"value" jsonschema:"description=What the founder said"`
	Confidence model.Confidence `json:"confidence" jsonschema:"enum=high,enum=medium,enum=low"`
}

// answerText accepts a JSON string or any scalar and keeps it as text.
type answerText string

func (a *answerText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = answerText(s)
		return nil
	}
	if data[0] == '{' || data[0] == '[' {
		return eris.New("value must be text")
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil || string(data) == "true" || string(data) == "false" {
		*a = answerText(data)
		return nil
	}
	return eris.Errorf("invalid value %s", data)
}

var extractionSchema = sync.OnceValue(func() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return r.Reflect(&extractionPayload{})
})

// extractionSchemaJSON renders the schema for inclusion in prompts.
func extractionSchemaJSON() string {
	b, err := json.MarshalIndent(extractionSchema(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// cleanJSON strips code fences or prose around a JSON object by slicing
// from the first '{' to the last '}'.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// decodeExtraction parses and validates an extraction payload. A payload
// missing either key, or carrying a confidence outside the closed set, is
// rejected whole.
func decodeExtraction(text string) (*extractionPayload, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return nil, errEmptyExtraction
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, eris.Wrap(err, "interview: extraction is not a JSON object")
	}
	for _, k := range []string{"extracted", "cannot_answer"} {
		v, ok := keys[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, eris.Errorf("interview: extraction missing %q", k)
		}
	}

	var p extractionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, eris.Wrap(err, "interview: decode extraction")
	}
	for i, prop := range p.Extracted {
		if prop.Confidence == "" {
			return nil, eris.Errorf("interview: extraction entry %d has no confidence", i)
		}
	}
	return &p, nil
}
