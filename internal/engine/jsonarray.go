package engine

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// EachJSONElement decodes a JSON array of the form [{...},{...}] one element
// at a time and calls fn with each element and its zero-based index. Errors
// returned by fn are passed through unchanged.
func EachJSONElement[T any](ctx context.Context, r io.Reader, fn func(i int, item T) error) error {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return eris.New("json: empty document")
		}
		return eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return eris.Errorf("json: expected '[', got %v", tok)
	}

	for i := 0; decoder.More(); i++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "json: context cancelled")
		}
		var item T
		if err := decoder.Decode(&item); err != nil {
			return eris.Wrapf(err, "json: decode element %d", i)
		}
		if err := fn(i, item); err != nil {
			return err
		}
	}

	if _, err := decoder.Token(); err != nil {
		return eris.Wrap(err, "json: read closing token")
	}
	return nil
}
