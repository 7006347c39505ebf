package translator

import "context"

type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript, lang string) (string, error)
}
