// Package httpapi exposes a peer's mirrored match state and controls over HTTP for tooling and
// headless clients.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/heroiclabs/nakama-common/runtime"

	"peakrace/internal/app"
	"peakrace/internal/domain"
	"peakrace/internal/peer"
	"peakrace/internal/ports/natsbus"
	"peakrace/internal/replication"
	"peakrace/internal/wire"
)

// ViewSource returns the current mirrored state.
type ViewSource interface {
	View() replication.View
}

// ArrivalReporter forwards the local player's arrival to the host.
type ArrivalReporter interface {
	ReportArrival(ctx context.Context, ghost bool) (wire.Ack, error)
}

// HostControls are the owner operations. Only the hosting peer serves them.
type HostControls interface {
	StartMatch(ctx context.Context) error
	EndMatch(ctx context.Context) error
	BalanceTeams(ctx context.Context) error
	AssignPlayer(ctx context.Context, playerID string, teamID int) error
}

type Server struct {
	view     ViewSource
	arrivals ArrivalReporter
	controls HostControls
	logger   runtime.Logger
}

// NewServer wires the handlers. controls may be nil, in which case the owner routes answer 403.
func NewServer(view ViewSource, arrivals ArrivalReporter, controls HostControls, logger runtime.Logger) *Server {
	return &Server{view: view, arrivals: arrivals, controls: controls, logger: logger}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/state", s.getState)
	r.GET("/standings", s.getStandings)
	r.POST("/arrivals", s.postArrival)

	owner := r.Group("/", s.requireControls)
	owner.POST("match/start", s.control(func(ctx context.Context) error { return s.controls.StartMatch(ctx) }))
	owner.POST("match/end", s.control(func(ctx context.Context) error { return s.controls.EndMatch(ctx) }))
	owner.POST("teams/balance", s.control(func(ctx context.Context) error { return s.controls.BalanceTeams(ctx) }))
	owner.POST("teams/assign", s.postAssign)
	return r
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.view.View())
}

type standingEntry struct {
	Rank  int    `json:"rank"`
	Team  int    `json:"team"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func (s *Server) getStandings(c *gin.Context) {
	view := s.view.View()
	teams := append([]replication.TeamView(nil), view.Teams...)
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].Score != teams[j].Score {
			return teams[i].Score > teams[j].Score
		}
		return teams[i].ID < teams[j].ID
	})
	out := make([]standingEntry, 0, len(teams))
	for i, t := range teams {
		out = append(out, standingEntry{Rank: i + 1, Team: t.ID, Name: t.Name, Score: t.Score})
	}
	c.JSON(http.StatusOK, gin.H{"winning_team": view.WinningTeam, "standings": out})
}

type arrivalRequest struct {
	Ghost bool `json:"ghost"`
}

type arrivalResponse struct {
	MessageID string `json:"message_id"`
	Outcome   string `json:"outcome"`
}

func (s *Server) postArrival(c *gin.Context) {
	var req arrivalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	ack, err := s.arrivals.ReportArrival(c.Request.Context(), req.Ghost)
	if err != nil {
		s.logger.Warn("httpapi: arrival failed: %v", err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, arrivalResponse{MessageID: ack.MessageID, Outcome: ack.Outcome.String()})
}

type assignRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	TeamID   int    `json:"team_id"`
}

func (s *Server) postAssign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.control(func(ctx context.Context) error {
		return s.controls.AssignPlayer(ctx, req.PlayerID, req.TeamID)
	})(c)
}

func (s *Server) requireControls(c *gin.Context) {
	if s.controls == nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this peer does not host the match"})
		return
	}
	c.Next()
}

func (s *Server) control(fn func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(c.Request.Context()); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoundNotActive),
		errors.Is(err, peer.ErrNoTeam),
		errors.Is(err, app.ErrMatchActive),
		errors.Is(err, app.ErrMatchNotActive),
		errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, peer.ErrArrivalRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, natsbus.ErrNoAck),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, app.ErrUnknownPlayer),
		errors.Is(err, app.ErrTooFewPlayers),
		errors.Is(err, domain.ErrUnknownTeam),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
