package workflows

type RefreshInput struct {
	KnowledgeBasePath string `json:"knowledge_base_path"`
	Schedule          string `json:"schedule"`
	Rebuild           bool   `json:"rebuild"`
	MaxConcurrent     int    `json:"max_concurrent"`
}

type RefreshProgress struct {
	Total       int               `json:"total"`
	Done        int               `json:"done"`
	Failed      int               `json:"failed"`
	PerDocument map[string]string `json:"per_document"`
}
