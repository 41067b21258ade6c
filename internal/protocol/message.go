// internal/protocol/message.go
package protocol

import (
	"bytes"
	"encoding/json"
)

// Chat roles accepted by the chat completion tool.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation in OpenAI chat format.
// Fields other than role and content (name, tool_call_id, server extensions)
// are kept in Extra and written back unchanged.
type Message struct {
	Role    string                 `json:"role"`
	Content string                 `json:"content"`
	Extra   map[string]interface{} `json:"-"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["role"] = m.Role
	out["content"] = m.Content
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return err
	}

	var known struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	delete(fields, "role")
	delete(fields, "content")

	m.Role, m.Content, m.Extra = known.Role, known.Content, nil
	if len(fields) > 0 {
		m.Extra = fields
	}
	return nil
}
