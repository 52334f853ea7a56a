package models

// GenerationResponse is the raw payload of POST /api/chat/generate. It carries
// both the ranked shape and the older single-name shape; any field may be absent.
type GenerationResponse struct {
	Names       []string                     `json:"names,omitempty"`
	Reasons     map[string]map[string]string `json:"reasons,omitempty"`
	NamesCount  []int                        `json:"namesCount,omitempty"`
	TotalCount  *int                         `json:"totalCount,omitempty"`
	Name        string                       `json:"name,omitempty"`
	Explanation string                       `json:"explanation,omitempty"`
}

// NamesResponse is the raw payload of GET /api/names.
type NamesResponse struct {
	Content       []NameCount `json:"content"`
	TotalPages    int         `json:"totalPages"`
	TotalElements int         `json:"totalElements"`
	Number        int         `json:"number"`
	Size          int         `json:"size"`
	First         bool        `json:"first"`
	Last          bool        `json:"last"`
}
