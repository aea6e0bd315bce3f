package models

// ParseStatus describes how far a parser got with a message.
type ParseStatus string

const (
	ParseComplete   ParseStatus = "complete"
	ParseIncomplete ParseStatus = "incomplete"
	ParseError      ParseStatus = "error"
)

// ParsingResult is the output shape every transaction parser returns.
type ParsingResult struct {
	Status           ParseStatus        `json:"status"`
	Transactions     []TransactionDraft `json:"transactions,omitempty"`
	FollowUpQuestion string             `json:"followUpQuestion,omitempty"`
	Insight          string             `json:"insight,omitempty"`
}

// Ready reports whether the result carries drafts that can be submitted.
func (r ParsingResult) Ready() bool {
	return r.Status == ParseComplete && len(r.Transactions) > 0
}
