package types

// ContentBlock is one element of a response payload.
type ContentBlock struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ExecutionResponse is the engine's outbound envelope. Two terminal shapes
// exist: a final response carrying rendered output, and an intermediate
// response whose metadata carries a chain_id plus a call to action asking the
// caller to resume with user_response.
type ExecutionResponse struct {
	Content  []ContentBlock         `json:"content"`
	IsError  bool                   `json:"isError,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewTextResponse builds a single-block text response.
func NewTextResponse(text string) *ExecutionResponse {
	return &ExecutionResponse{Content: []ContentBlock{TextBlock(text)}}
}

// NewErrorResponse builds a terminal error response.
func NewErrorResponse(text string) *ExecutionResponse {
	return &ExecutionResponse{
		Content: []ContentBlock{TextBlock(text)},
		IsError: true,
	}
}

// Text returns the concatenated text of all content blocks.
func (r *ExecutionResponse) Text() string {
	var out string
	for _, b := range r.Content {
		out += b.Text
	}
	return out
}

// SetMeta sets a metadata key, allocating the map on first use.
func (r *ExecutionResponse) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}
