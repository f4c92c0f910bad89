package transform

import (
	"context"
	"encoding/json"
	"fmt"
)

// HTML exports markup as a string from a script module, so that it can be
// imported from code.
func HTML() Transformer {
	return Func(func(_ context.Context, in Asset, _ Options) (Asset, error) {
		if in.Kind != KindHTML {
			return Asset{}, fmt.Errorf("expected html input, got %s", in.Kind)
		}

		literal, err := json.Marshal(string(in.Contents))
		if err != nil {
			return Asset{}, err
		}

		return Asset{
			Path:     in.Path,
			Contents: []byte("export default " + string(literal) + ";\n"),
			Kind:     KindJS,
		}, nil
	})
}
