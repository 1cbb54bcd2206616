package summarize

// Request is the body of a summary request. SectionTitle is optional display
// context forwarded to the model; Content is the raw section text.
type Request struct {
	SectionTitle string `json:"section_title"`
	Content      string `json:"content" validate:"required"`
}

// Summary is the structured output of one summarization.
type Summary struct {
	Overview   string   `json:"overview"`
	KeyPoints  []string `json:"keyPoints"`
	Importance string   `json:"importance"`
}

// UsageEnvelope reports the caller's quota position after the request.
// Limit is null for unbounded tiers.
type UsageEnvelope struct {
	Used     int    `json:"used"`
	Limit    *int   `json:"limit"`
	Tier     string `json:"tier"`
	BetaMode bool   `json:"beta_mode"`
}

// Result is the full response of the summarize operation.
type Result struct {
	Summary  *Summary      `json:"summary"`
	Usage    UsageEnvelope `json:"usage"`
	Degraded bool          `json:"degraded,omitempty"`
}
