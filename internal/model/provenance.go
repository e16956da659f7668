package model

// ProvenanceResult records whether a fact's source sentence was found in its document
type ProvenanceResult struct {
	FieldName     string `json:"field_name"`
	DocumentTitle string `json:"document_title"`
	Sentence      string `json:"sentence"`
	Found         bool   `json:"found"`
	Exact         bool   `json:"exact"`             // Whole sentence matched (false: three-word window)
	Offset        int    `json:"offset"`            // Byte offset of the match in the document text
	Matched       string `json:"matched,omitempty"` // Document text that matched
	Context       string `json:"context,omitempty"` // Surrounding document text
	Error         string `json:"error,omitempty"`
}
