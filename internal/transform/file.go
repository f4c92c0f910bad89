package transform

import "context"

// File marks the asset to be emitted as a separate file. The caller names
// and writes it using the rule's naming policy.
func File() Transformer {
	return Func(func(_ context.Context, in Asset, _ Options) (Asset, error) {
		out := in
		out.Kind = KindFile
		return out, nil
	})
}
