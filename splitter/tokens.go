package splitter

import (
	"github.com/pkoukk/tiktoken-go"
)

// CountTokens estimates the token count of text with the gpt-3.5-turbo
// encoding, which is close enough for the llama family prompts we size.
func CountTokens(text string) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
