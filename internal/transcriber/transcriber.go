package transcriber

import "context"

// Segment is a timed span of recognised speech. Start and End are seconds
// from the beginning of the submitted audio.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

type Result struct {
	Text string
	// Language is the backend's overall language guess, in whatever form the
	// backend reports it ("ko", "korean", "ko-KR").
	Language string
	Segments []Segment
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Result, error)
}
