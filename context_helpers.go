package jobstate

import "context"

// normalizeContext defaults a nil context to context.Background() and
// rejects one that's already done before any engine call is attempted.
func normalizeContext(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ctx, nil
}
