package chat

// AnalysisResponse is returned by POST /api/analyze.
type AnalysisResponse struct {
	Description string `json:"description"`
}
