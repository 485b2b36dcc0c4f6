package gateway

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"

	"github.com/go-go-golems/estatebot/pkg/chat"
)

// EstimateTokens counts prompt tokens with the cl100k_base encoding, adding
// the usual per-message framing overhead. The encoding tables are compiled
// into the binary, so no download happens.
func EstimateTokens(turns []chat.Turn) (int, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return 0, errors.Wrap(err, "load tokenizer")
	}
	total := 3
	for _, t := range turns {
		total += 4
		for _, s := range []string{string(t.Role), t.Content} {
			ids, _, err := codec.Encode(s)
			if err != nil {
				return 0, errors.Wrap(err, "encode turn")
			}
			total += len(ids)
		}
	}
	return total, nil
}
