package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sweetginger/Nyogi/internal/apperr"
	"github.com/sweetginger/Nyogi/internal/audio"
	"github.com/sweetginger/Nyogi/internal/live"
	"github.com/sweetginger/Nyogi/internal/pipeline"
	"github.com/sweetginger/Nyogi/internal/repository"
	"github.com/sweetginger/Nyogi/internal/session"
)

const (
	msgConnectionEstablished = "connection.established"
	msgSessionStart          = "session.start"
	msgSessionStartAck       = "session.start.ack"
	msgSessionEnd            = "session.end"
	msgSessionEndAck         = "session.end.ack"
	msgAudioChunk            = "audio.chunk"
	msgCaptionPartial        = "caption.partial"
	msgCaptionFinal          = "caption.final"
	msgError                 = "error"

	encodingPCM16 = "pcm16"
	encodingOpus  = "opus"

	maxStreamMessageBytes = 4 << 20
	streamWriteTimeout    = 10 * time.Second
	captionStoreTimeout   = 10 * time.Second
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type sessionStartPayload struct {
	MeetingID string `json:"meetingId"`
	StartedBy string `json:"startedBy"`
}

type sessionEndPayload struct {
	SessionID string `json:"sessionId"`
}

type sessionAckPayload struct {
	SessionID string `json:"sessionId"`
}

type audioChunkPayload struct {
	Seq        *int64 `json:"seq"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"`
	// DataB64 is accepted from older clients.
	DataB64  string `json:"dataB64"`
	Encoding string `json:"encoding"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type establishedPayload struct {
	Message      string `json:"message"`
	ConnectionID string `json:"connectionId"`
}

type streamConn struct {
	id  string
	srv *Server
	ws  *websocket.Conn
	ctx context.Context
	log *slog.Logger

	writeMu sync.Mutex

	// Owned by the read loop.
	meetingID string
	sessionID string
	segmenter *live.Segmenter
	decoder   audio.Decoder
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.streamWG.Add(1)
	defer s.streamWG.Done()

	id := uuid.NewString()
	c := &streamConn{
		id:  id,
		srv: s,
		ws:  ws,
		ctx: context.WithoutCancel(r.Context()),
		log: slog.With("connection_id", id),
	}
	s.streams.add(c)
	defer s.streams.remove(c)

	ws.SetReadLimit(maxStreamMessageBytes)
	c.log.Info("stream connection established", "remote_addr", r.RemoteAddr)
	c.send(msgConnectionEstablished, establishedPayload{Message: "WebSocket connection established", ConnectionID: id})

	c.readLoop()
	c.teardown()
	c.closeSocket()
}

func (c *streamConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("stream read ended", "error", err)
			}
			return
		}
		var msg envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("Invalid message", "")
			continue
		}
		switch msg.Type {
		case msgSessionStart:
			c.handleStart(msg.Payload)
		case msgAudioChunk:
			c.handleChunk(msg.Payload)
		case msgSessionEnd:
			c.handleEnd(msg.Payload)
		default:
			c.sendError(fmt.Sprintf("Unknown message type: %s", msg.Type), "")
		}
	}
}

func (c *streamConn) handleStart(raw json.RawMessage) {
	var p sessionStartPayload
	if err := json.Unmarshal(raw, &p); err != nil || strings.TrimSpace(p.MeetingID) == "" || strings.TrimSpace(p.StartedBy) == "" {
		c.sendError("Missing meetingId or startedBy", apperr.CodeValidation)
		return
	}
	if c.segmenter != nil {
		c.sendError("Session already started on this connection", apperr.CodeInProgress)
		return
	}

	meeting, err := c.srv.repo.GetMeeting(c.ctx, p.MeetingID)
	if err != nil {
		c.log.Error("failed to load meeting", "meeting_id", p.MeetingID, "error", err)
		c.sendError("Failed to load meeting", repository.ErrorCode(err))
		return
	}
	if meeting == nil {
		c.sendError("Meeting not found", apperr.CodeNotFound)
		return
	}
	if !c.srv.streams.claim(meeting.ID, c.id) {
		c.sendError("Meeting is already being streamed", apperr.CodeInProgress)
		return
	}

	sess, err := c.srv.machine.Begin(c.ctx, session.BeginInput{MeetingID: meeting.ID, StartedBy: p.StartedBy, Path: session.PathLive})
	if err != nil {
		c.srv.streams.release(meeting.ID, c.id)
		var conflict *apperr.ConflictError
		if errors.As(err, &conflict) {
			c.sendError(conflictMessage(conflict.Code), conflict.Code)
			return
		}
		c.log.Error("failed to begin live session", "meeting_id", meeting.ID, "error", err)
		c.sendError("Failed to start session", apperr.CodePersistenceFailed)
		return
	}

	c.meetingID = meeting.ID
	c.sessionID = sess.ID
	c.log = c.log.With("meeting_id", meeting.ID, "session_id", sess.ID)
	cfg := c.srv.cfg.Segmenter
	cfg.Speaker = pipeline.DefaultSpeaker
	c.segmenter = live.NewSegmenter(c.ctx, cfg, c.srv.transcriber, &captionSink{conn: c, meetingID: meeting.ID, sessionID: sess.ID}, c.log)

	c.send(msgSessionStartAck, sessionAckPayload{SessionID: sess.ID})
	c.log.Info("live session started")
}

func (c *streamConn) handleChunk(raw json.RawMessage) {
	if c.segmenter == nil {
		c.sendError("No active session", "")
		return
	}
	var p audioChunkPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Seq == nil {
		c.sendError("Invalid audio.chunk payload", apperr.CodeValidation)
		return
	}
	encoded := p.Data
	if encoded == "" {
		encoded = p.DataB64
	}
	if encoded == "" {
		c.sendError("Invalid audio.chunk payload", apperr.CodeValidation)
		return
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.sendError("Failed to decode audio chunk", apperr.CodeValidation)
		return
	}

	frame := live.Frame{Seq: *p.Seq, SampleRate: p.SampleRate, Channels: p.Channels, PCM: data}
	switch strings.ToLower(p.Encoding) {
	case "", encodingPCM16:
	case encodingOpus:
		pcm, err := c.decodeOpus(p, data)
		if err != nil {
			c.log.Warn("failed to decode opus chunk", "seq", *p.Seq, "error", err)
			c.sendError("Failed to decode audio chunk", "")
			return
		}
		frame.PCM = pcm
		frame.Channels = 1
	default:
		c.sendError(fmt.Sprintf("Unsupported audio encoding: %s", p.Encoding), apperr.CodeValidation)
		return
	}

	if err := c.segmenter.Push(frame); err != nil {
		c.sendError(err.Error(), "")
	}
}

func (c *streamConn) decodeOpus(p audioChunkPayload, packet []byte) ([]byte, error) {
	if c.decoder == nil {
		if c.srv.decoders == nil {
			return nil, audio.ErrUnsupportedEncoding
		}
		dec, err := c.srv.decoders(p.SampleRate, p.Channels)
		if err != nil {
			return nil, err
		}
		c.decoder = dec
	}
	return c.decoder.Decode(packet)
}

func (c *streamConn) handleEnd(raw json.RawMessage) {
	var p sessionEndPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SessionID == "" {
		c.sendError("Missing sessionId", apperr.CodeValidation)
		return
	}
	if c.segmenter == nil || p.SessionID != c.sessionID {
		c.sendError("Unknown sessionId", apperr.CodeNotFound)
		return
	}

	c.stopSegmenter()
	if err := c.srv.machine.MarkEnded(c.ctx, c.sessionID); err != nil {
		c.log.Error("failed to mark live session ended", "error", err)
		c.sendError("Failed to end session", apperr.CodePersistenceFailed)
		return
	}
	c.srv.streams.release(c.meetingID, c.id)
	c.send(msgSessionEndAck, sessionAckPayload{SessionID: p.SessionID})
	c.log.Info("live session ended")
	c.sessionID = ""
	c.meetingID = ""
}

// teardown flushes whatever the client streamed before the socket went away
// and marks the stream ended so an upload can take the session over.
func (c *streamConn) teardown() {
	c.stopSegmenter()
	if c.sessionID != "" {
		if err := c.srv.machine.MarkEnded(c.ctx, c.sessionID); err != nil {
			c.log.Error("failed to mark dropped live session ended", "error", err)
		}
	}
	if c.meetingID != "" {
		c.srv.streams.release(c.meetingID, c.id)
	}
}

func (c *streamConn) stopSegmenter() {
	if c.segmenter != nil {
		c.segmenter.Close()
		c.segmenter = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

func (c *streamConn) send(msgType string, payload any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := c.ws.WriteJSON(outbound{Type: msgType, Payload: payload}); err != nil {
		c.log.Debug("stream write failed", "type", msgType, "error", err)
	}
}

func (c *streamConn) sendError(message, code string) {
	c.send(msgError, errorPayload{Message: message, Code: code})
}

func (c *streamConn) closeSocket() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.Close()
}

// captionSink forwards segment events to the client and stores finals as
// captions with placeholder languages.
type captionSink struct {
	conn      *streamConn
	meetingID string
	sessionID string
}

func (s *captionSink) OnPartial(seg live.Segment) {
	s.conn.send(msgCaptionPartial, seg)
}

func (s *captionSink) OnFinal(seg live.Segment) {
	c := s.conn
	c.send(msgCaptionFinal, seg)

	ctx, cancel := context.WithTimeout(c.ctx, captionStoreTimeout)
	defer cancel()
	if !s.stillRecording(ctx) {
		return
	}
	caption, err := c.srv.repo.AppendCaption(ctx, repository.AppendCaptionInput{
		MeetingID:  s.meetingID,
		Speaker:    seg.Speaker,
		StartMs:    seg.StartMs,
		EndMs:      seg.EndMs,
		SourceLang: c.srv.cfg.LiveSourceLang,
		SourceText: seg.Text,
		TargetLang: c.srv.cfg.LiveTargetLang,
		TargetText: seg.Text,
	})
	if err != nil {
		c.log.Error("failed to store live caption", "segment_id", seg.SegmentID, "error", err, "code", repository.ErrorCode(err))
		return
	}
	c.log.Debug("live caption stored", "segment_id", seg.SegmentID, "seq", caption.Seq)
}

// stillRecording guards appends against a caption set that an upload has
// already replaced.
func (s *captionSink) stillRecording(ctx context.Context) bool {
	latest, err := s.conn.srv.repo.LatestSessionByMeeting(ctx, s.meetingID)
	if err != nil {
		s.conn.log.Error("failed to check live session before storing caption", "error", err, "code", repository.ErrorCode(err))
		return false
	}
	if latest == nil || latest.ID != s.sessionID || latest.Status != repository.SessionStatusRecording {
		s.conn.log.Warn("live session no longer recording; caption not stored")
		return false
	}
	return true
}
