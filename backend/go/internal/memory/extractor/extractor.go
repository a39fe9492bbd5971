package extractor

import "context"

// Extractor turns one free-text message into a list of facts.
//
// raw is the model output the facts were parsed from. It is returned even
// when no facts were found so callers can record what the model said.
type Extractor interface {
	Extract(ctx context.Context, text string) (facts []string, raw string, err error)
}
