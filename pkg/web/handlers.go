package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	contribws "github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/hub"
	"github.com/teslashibe/go-asl/pkg/protocol"
)

// handleIndex serves the trigger page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}

// handleClips returns the clip catalog
func (s *Server) handleClips(c *fiber.Ctx) error {
	return c.JSON(protocol.CatalogOf(s.animator.Player().Library()))
}

// handleStatus returns the playback status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.animator.Status())
}

// handlePose returns the most recent frame
func (s *Server) handlePose(c *fiber.Ctx) error {
	return c.JSON(s.animator.Frame())
}

// handlePlay starts a clip by name
func (s *Server) handlePlay(c *fiber.Ctx) error {
	name := c.Params("name")

	id, err := s.play(name)
	if err != nil {
		status := fiber.StatusBadRequest
		switch {
		case errors.Is(err, gesture.ErrUnknownClip):
			status = fiber.StatusNotFound
		case errors.Is(err, ErrBusy):
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(protocol.ErrorData{
			Command: protocol.TypePlay,
			Code:    protocol.ErrorCode(err),
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(protocol.AckData{
		Command: protocol.TypePlay,
		PlayID:  id,
	})
}

// handleStop abandons the current clip
func (s *Server) handleStop(c *fiber.Ctx) error {
	return c.JSON(protocol.AckData{
		Command: protocol.TypeStop,
		Stopped: s.animator.Stop(),
	})
}

// handleFramesWS streams frames to a pose sink
func (s *Server) handleFramesWS(c *websocket.Conn) {
	hub.Serve(s.frames, c)
}

// handleControlWS runs a command session
func (s *Server) handleControlWS(c *contribws.Conn) {
	session := uuid.NewString()
	limiter := rate.NewLimiter(s.controlRate, s.controlBurst)
	logger := s.logger.With("session", session)

	count := s.sessions.Add(1)
	logger.Info("control session opened", "sessions", count)
	defer func() {
		count := s.sessions.Add(-1)
		logger.Info("control session closed", "sessions", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("control read ended", "error", err)
			return
		}

		reply := s.handleCommand(data, limiter)
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			logger.Error("encode reply", "error", err)
			continue
		}
		c.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.WriteMessage(contribws.TextMessage, out); err != nil {
			logger.Debug("control write failed", "error", err)
			return
		}
	}
}

// handleCommand executes one control message and returns the reply.
// Replies carry the request's ID.
func (s *Server) handleCommand(data []byte, limiter *rate.Limiter) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return s.errorReply("", "", protocol.CodeBadRequest, err.Error())
	}

	switch msg.Type {
	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return s.errorReply(msg.ID, msg.Type, protocol.CodeBadRequest, err.Error())
		}
		reply, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		return s.replyTo(msg, reply, err)

	case protocol.TypeClips:
		reply, err := protocol.NewClipsMessage(s.animator.Player().Library())
		return s.replyTo(msg, reply, err)

	case protocol.TypeStatus:
		reply, err := protocol.NewStatusMessage(s.animator.Status())
		return s.replyTo(msg, reply, err)
	}

	if !limiter.Allow() {
		return s.errorReply(msg.ID, msg.Type, protocol.CodeRateLimited, "too many commands")
	}

	switch msg.Type {
	case protocol.TypePlay:
		cmd, err := msg.GetPlayCommand()
		if err != nil {
			return s.errorReply(msg.ID, msg.Type, protocol.CodeBadRequest, err.Error())
		}
		id, err := s.play(cmd.Clip)
		if err != nil {
			return s.errorReply(msg.ID, msg.Type, protocol.ErrorCode(err), err.Error())
		}
		reply, err := protocol.NewAckMessage(protocol.AckData{Command: protocol.TypePlay, PlayID: id})
		return s.replyTo(msg, reply, err)

	case protocol.TypeStop:
		reply, err := protocol.NewAckMessage(protocol.AckData{
			Command: protocol.TypeStop,
			Stopped: s.animator.Stop(),
		})
		return s.replyTo(msg, reply, err)

	default:
		return s.errorReply(msg.ID, msg.Type, protocol.CodeBadRequest, "unsupported command "+string(msg.Type))
	}
}

// replyTo tags reply with the request's ID. An encoding failure becomes an
// internal error reply.
func (s *Server) replyTo(req *protocol.Message, reply *protocol.Message, err error) *protocol.Message {
	if err != nil {
		s.logger.Error("encode reply", "command", req.Type, "error", err)
		return s.errorReply(req.ID, req.Type, protocol.CodeInternal, "failed to encode reply")
	}
	return reply.WithID(req.ID)
}

func (s *Server) errorReply(id string, cmd protocol.MessageType, code, text string) *protocol.Message {
	reply, err := protocol.NewErrorMessage(cmd, code, text)
	if err != nil {
		s.logger.Error("encode error reply", "error", err)
		return nil
	}
	return reply.WithID(id)
}
