package stompws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// FrameType is the first byte of a SockJS frame.
type FrameType byte

const (
	FrameOpen      FrameType = 'o'
	FrameHeartbeat FrameType = 'h'
	FrameArray     FrameType = 'a'
	FrameMessage   FrameType = 'm'
	FrameClose     FrameType = 'c'
)

var ErrBadFrame = errors.New("stompws: malformed sockjs frame")

// Frame is one decoded SockJS frame.
type Frame struct {
	Type FrameType

	// Messages holds the payloads of 'a' and 'm' frames.
	Messages []string

	// Code and Reason are set on 'c' frames.
	Code   int
	Reason string
}

// DecodeFrame parses a SockJS frame received over the websocket transport.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrBadFrame
	}

	f := Frame{Type: FrameType(b[0])}
	body := b[1:]

	switch f.Type {
	case FrameOpen, FrameHeartbeat:
		if len(bytes.TrimSpace(body)) != 0 {
			return Frame{}, fmt.Errorf("%w: trailing data after %q", ErrBadFrame, f.Type)
		}
	case FrameArray:
		if err := json.Unmarshal(body, &f.Messages); err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
	case FrameMessage:
		var msg string
		if err := json.Unmarshal(body, &msg); err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		f.Messages = []string{msg}
	case FrameClose:
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil || len(raw) != 2 {
			return Frame{}, fmt.Errorf("%w: bad close frame", ErrBadFrame)
		}
		if err := json.Unmarshal(raw[0], &f.Code); err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		if err := json.Unmarshal(raw[1], &f.Reason); err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
	default:
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}

	return f, nil
}

// Encode renders f as a server would send it.
func (f Frame) Encode() ([]byte, error) {
	switch f.Type {
	case FrameOpen, FrameHeartbeat:
		return []byte{byte(f.Type)}, nil
	case FrameArray:
		body, err := json.Marshal(f.Messages)
		if err != nil {
			return nil, err
		}
		return append([]byte{byte(FrameArray)}, body...), nil
	case FrameMessage:
		if len(f.Messages) != 1 {
			return nil, fmt.Errorf("%w: 'm' frame carries exactly one message", ErrBadFrame)
		}
		body, err := json.Marshal(f.Messages[0])
		if err != nil {
			return nil, err
		}
		return append([]byte{byte(FrameMessage)}, body...), nil
	case FrameClose:
		body, err := json.Marshal([]any{f.Code, f.Reason})
		if err != nil {
			return nil, err
		}
		return append([]byte{byte(FrameClose)}, body...), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadFrame, f.Type)
	}
}

// EncodeClientMessages renders what a client sends: a bare JSON array of
// strings, no type prefix.
func EncodeClientMessages(msgs ...string) ([]byte, error) {
	if msgs == nil {
		msgs = []string{}
	}
	return json.Marshal(msgs)
}

// CloseError reports a SockJS 'c' frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("stompws: closed by server: %d %s", e.Code, e.Reason)
}

// stream turns a websocket into the byte stream STOMP framing runs over. In
// SockJS mode inbound frames are unwrapped and outbound writes are wrapped
// in JSON arrays.
type stream struct {
	ws     *websocket.Conn
	sockjs bool

	// cur is the unread remainder of the last inbound payload. Only the
	// STOMP reader goroutine touches it.
	cur []byte

	wmu sync.Mutex

	closeOnce sync.Once
	shutOnce  sync.Once
	shutErr   error
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

func newStream(ws *websocket.Conn, sockjs bool) *stream {
	return &stream{ws: ws, sockjs: sockjs, done: make(chan struct{})}
}

// awaitOpen consumes the SockJS open frame.
func (s *stream) awaitOpen() error {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return s.fail(err)
	}
	f, err := DecodeFrame(data)
	if err != nil {
		return s.fail(err)
	}
	switch f.Type {
	case FrameOpen:
		return nil
	case FrameClose:
		return s.fail(&CloseError{Code: f.Code, Reason: f.Reason})
	default:
		return s.fail(fmt.Errorf("%w: expected open frame, got %q", ErrBadFrame, f.Type))
	}
}

func (s *stream) Read(p []byte) (int, error) {
	for len(s.cur) == 0 {
		payload, err := s.next()
		if err != nil {
			return 0, err
		}
		s.cur = payload
	}

	n := copy(p, s.cur)
	s.cur = s.cur[n:]
	return n, nil
}

// next returns the next non-empty inbound payload.
func (s *stream) next() ([]byte, error) {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return nil, s.fail(err)
		}
		if !s.sockjs {
			if len(data) > 0 {
				return data, nil
			}
			continue
		}

		f, err := DecodeFrame(data)
		if err != nil {
			return nil, s.fail(err)
		}

		switch f.Type {
		case FrameOpen, FrameHeartbeat:
			continue
		case FrameClose:
			return nil, s.fail(&CloseError{Code: f.Code, Reason: f.Reason})
		}

		var buf bytes.Buffer
		for _, m := range f.Messages {
			buf.WriteString(m)
		}
		if buf.Len() > 0 {
			return buf.Bytes(), nil
		}
	}
}

func (s *stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	select {
	case <-s.done:
		return 0, s.Err()
	default:
	}

	data := p
	if s.sockjs {
		var err error
		if data, err = EncodeClientMessages(string(p)); err != nil {
			return 0, err
		}
	}

	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return 0, s.fail(err)
	}
	return len(p), nil
}

// Close is idempotent; go-stomp closes the stream on disconnect too.
func (s *stream) Close() error {
	s.shutOnce.Do(func() {
		s.wmu.Lock()
		_ = s.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadlineSoon(),
		)
		s.wmu.Unlock()

		_ = s.fail(io.EOF)
		s.shutErr = s.ws.Close()
	})
	return s.shutErr
}

// fail records the first error, marks the stream done and returns err.
func (s *stream) fail(err error) error {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
	})
	return err
}

func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
