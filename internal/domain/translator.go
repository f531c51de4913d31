package domain

import "context"

// Translator converts text into the target language. Implementations may
// return an error; callers that need fail-open behaviour wrap them in
// translate.Engine.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, target string) (string, error)
}

// Dispatcher delivers posts to the destination. Post never fails outward.
type Dispatcher interface {
	Post(ctx context.Context, post OutboundPost)
}
