package ai

import (
	"bytes"
	"encoding/json"

	"chai-assistant/internal/model"
)

type ToolResultKind int

const (
	// ToolResultAbsent: the turn ran no tool, or the tool returned nothing
	// or a bare string.
	ToolResultAbsent ToolResultKind = iota
	ToolResultPresent
	// ToolResultMalformed: a tool ran but its payload has an unknown shape.
	ToolResultMalformed
)

func (k ToolResultKind) String() string {
	switch k {
	case ToolResultAbsent:
		return "absent"
	case ToolResultPresent:
		return "present"
	case ToolResultMalformed:
		return "malformed"
	}
	return "unknown"
}

type ToolResult struct {
	Kind     ToolResultKind
	Items    []model.ContextItem
	Metadata json.RawMessage
	Reason   string
}

// ExtractToolResult reads the first tool response of the first tool execution
// step of a turn.
func ExtractToolResult(turn *AgentTurn) ToolResult {
	if turn == nil {
		return ToolResult{Kind: ToolResultAbsent, Reason: "no turn"}
	}

	for _, step := range turn.Steps {
		if step.StepType != StepToolExecution {
			continue
		}
		if len(step.ToolResponses) == 0 {
			return ToolResult{Kind: ToolResultMalformed, Reason: "tool step without responses"}
		}
		resp := step.ToolResponses[0]
		result := parseToolContent(resp.Content)
		result.Metadata = resp.Metadata
		return result
	}
	return ToolResult{Kind: ToolResultAbsent, Reason: "no tool execution step"}
}

func parseToolContent(raw json.RawMessage) ToolResult {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ToolResult{Kind: ToolResultAbsent, Reason: "empty tool content"}
	}

	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return ToolResult{Kind: ToolResultMalformed, Reason: err.Error()}
		}
		items := make([]model.ContextItem, 0, len(elems))
		for _, e := range elems {
			items = append(items, model.ContextItem{Raw: e})
		}
		return ToolResult{Kind: ToolResultPresent, Items: items}
	case '"':
		// Runtimes answer with prose such as "No relevant chunks found" when
		// nothing matched; only a list carries results.
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ToolResult{Kind: ToolResultMalformed, Reason: err.Error()}
		}
		return ToolResult{Kind: ToolResultAbsent, Reason: "string tool content"}
	}
	return ToolResult{Kind: ToolResultMalformed, Reason: "unexpected tool content shape"}
}

// DocumentIDs collects the document ids a listing result mentions, from
// object items and from the response metadata.
func (r ToolResult) DocumentIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, item := range r.Items {
		fields, ok := item.Fields()
		if !ok {
			continue
		}
		if id, ok := fields["document_id"].(string); ok && id != "" {
			ids[id] = struct{}{}
			continue
		}
		if id := item.Metadata()["document_id"]; id != "" {
			ids[id] = struct{}{}
		}
	}

	if len(r.Metadata) > 0 {
		var meta struct {
			DocumentIDs []string `json:"document_ids"`
		}
		if err := json.Unmarshal(r.Metadata, &meta); err == nil {
			for _, id := range meta.DocumentIDs {
				if id != "" {
					ids[id] = struct{}{}
				}
			}
		}
	}
	return ids
}
