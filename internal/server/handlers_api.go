package server

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Serph91P/streamvault/internal/domain"
	apperrors "github.com/Serph91P/streamvault/internal/errors"
	"github.com/Serph91P/streamvault/internal/jobs"
)

// usernamePattern matches valid Twitch logins.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,25}$`)

type addStreamerRequest struct {
	Username string `json:"username"`
}

type streamerResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	TwitchID    string    `json:"twitch_id,omitempty"`
	IsLive      bool      `json:"is_live"`
	StreamTitle string    `json:"stream_title,omitempty"`
	GameName    string    `json:"game_name,omitempty"`
}

func toStreamerResponse(s domain.Streamer) streamerResponse {
	return streamerResponse{
		ID:          s.ID,
		Username:    s.Username,
		TwitchID:    s.TwitchID,
		IsLive:      s.IsLive,
		StreamTitle: s.StreamTitle,
		GameName:    s.GameName,
	}
}

func (s *Server) handleAddStreamer(c echo.Context) error {
	var req addStreamerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !usernamePattern.MatchString(username) {
		return apperrors.ValidationError("invalid username").WithField("username", req.Username)
	}

	jobID, err := s.queue.Enqueue(c.Request().Context(), jobs.KindAddStreamer, username)
	if err != nil {
		return apperrors.InternalError("failed to enqueue job", err).WithField("username", username)
	}

	if err := c.JSON(202, map[string]string{
		"job_id":     jobID.String(),
		"status_url": fmt.Sprintf("/api/jobs/%s", jobID),
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListStreamers(c echo.Context) error {
	streamers, err := s.streamers.List(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list streamers", err)
	}

	resp := make([]streamerResponse, 0, len(streamers))
	for _, streamer := range streamers {
		resp = append(resp, toStreamerResponse(streamer))
	}

	if err := c.JSON(200, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteStreamer(c echo.Context) error {
	streamerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid streamer ID").WithField("id", c.Param("id"))
	}

	if err := s.service.UntrackStreamer(c.Request().Context(), streamerID); err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return apperrors.NotFoundError("streamer not found").WithField("id", streamerID.String())
		}
		return apperrors.InternalError("failed to delete streamer", err).WithField("id", streamerID.String())
	}

	return c.NoContent(204)
}

func (s *Server) handleResubscribe(c echo.Context) error {
	jobID, err := s.queue.Enqueue(c.Request().Context(), jobs.KindResubscribeAll, "")
	if err != nil {
		return apperrors.InternalError("failed to enqueue job", err)
	}

	if err := c.JSON(202, map[string]string{
		"job_id":     jobID.String(),
		"status_url": fmt.Sprintf("/api/jobs/%s", jobID),
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleJobStatus(c echo.Context) error {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.ValidationError("invalid job ID").WithField("id", c.Param("id"))
	}

	result, err := s.queue.GetResult(c.Request().Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return apperrors.NotFoundError("job not found").WithField("id", jobID.String())
		}
		return apperrors.InternalError("failed to fetch job result", err).WithField("id", jobID.String())
	}

	if err := c.JSON(200, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
