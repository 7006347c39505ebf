package discord

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/sweetginger/Nyogi/internal/discord"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestSession(t *testing.T, rt roundTripFunc) *discordgo.Session {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if rt != nil {
		s.Client = &http.Client{Transport: rt}
	}
	return s
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestSendChannelMessageWithFile_PostsAttachment(t *testing.T) {
	var gotPath, gotBody string
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		return jsonResponse(http.StatusOK, `{"id":"msg-1","channel_id":"ch-1"}`), nil
	})

	c := &Client{session: s}
	err := c.SendChannelMessageWithFile(discordpkg.FileMessage{
		ChannelID: "ch-1",
		Content:   "transcript ready",
		Filename:  "transcript.txt",
		FileBody:  []byte("[00:00:00] S1 Hello."),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/channels/ch-1/messages") {
		t.Fatalf("unexpected request path: %s", gotPath)
	}
	if !strings.Contains(gotBody, "transcript.txt") || !strings.Contains(gotBody, "[00:00:00] S1 Hello.") {
		t.Fatalf("attachment not found in body: %s", gotBody)
	}
}

func TestSendChannelMessageWithFile_SurfacesRESTError(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"message":"Missing Access","code":50001}`), nil
	})

	c := &Client{session: s}
	if err := c.SendChannelMessageWithFile(discordpkg.FileMessage{ChannelID: "ch-1", Content: "x"}); err == nil {
		t.Fatal("expected error for forbidden response")
	}
}

func TestSendChannelMessageWithFile_EmptyChannelIsNoop(t *testing.T) {
	s := newTestSession(t, func(req *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected REST call: %s %s", req.Method, req.URL.String())
		return nil, nil
	})

	c := &Client{session: s}
	if err := c.SendChannelMessageWithFile(discordpkg.FileMessage{Content: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_EmptyTokenIsNoop(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SendChannelMessageWithFile(discordpkg.FileMessage{ChannelID: "ch-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("회의록", 5); got != "회의록" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := truncateRunes("abcdef", 4); got != "abc…" {
		t.Fatalf("unexpected value: %q", got)
	}
}
