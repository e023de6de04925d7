package assembler

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// NewTikTokenEstimator returns a TokenEstimator backed by tiktoken-go for the given model.
// Common models: "gpt-4", "gpt-4o". Gemini has no public BPE; gpt-4o counts are close enough for budgeting.
// If the model is unknown, or the encoding cannot be loaded, it returns an error.
func NewTikTokenEstimator(model string) (TokenEstimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, err
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// RuneEstimator approximates tokens as runes/4, rounded up.
func RuneEstimator(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
