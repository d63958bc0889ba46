// Package bot hosts the chat-platform webhook surface. It verifies signed
// command tokens, dispatches them to the game service, and serves the bot
// definition document. It is a pure consumer of the game service and never
// touches region bytes directly.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/H3nryK/Darely/internal/darely"
	"github.com/H3nryK/Darely/internal/darely/service"
	"github.com/H3nryK/Darely/internal/darely/state"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

const (
	// maxCommandTokenBytes bounds the webhook request body.
	maxCommandTokenBytes = 16 * 1024

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config defines the inputs for the bot server.
type Config struct {
	Addr    string
	Service *service.Service
	State   *state.State
}

// Server hosts the bot HTTP surface and lifecycle.
type Server struct {
	addr    string
	service *service.Service
	state   *state.State
	tracer  trace.Tracer
}

// New builds a bot server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("game service is required")
	}
	if cfg.State == nil {
		return nil, errors.New("state handle is required")
	}
	return &Server{
		addr:    cfg.Addr,
		service: cfg.Service,
		state:   cfg.State,
		tracer:  otel.Tracer("darely/bot"),
	}, nil
}

// Handler builds the webhook route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDefinition)
	mux.HandleFunc("POST /execute_command", s.handleExecuteCommand)
	return mux
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("bot listening on %s", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve bot: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(drainCtx)
	})
	return group.Wait()
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BotDefinition())
}

// messageResponse is the success payload of /execute_command.
type messageResponse struct {
	Message struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"message"`
}

// errorResponse is the failure payload of /execute_command.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandTokenBytes))
	if err != nil {
		s.writeError(w, apperrors.Wrap(apperrors.CodeCommandTokenInvalid, "read command token", err))
		return
	}

	config, err := s.state.Config()
	if err != nil {
		s.writeError(w, err)
		return
	}
	claims, err := verifyCommand(string(body), config.BotPublicKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	initiator, err := darely.ParsePrincipal(claims.Initiator)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "bot.execute_command",
		trace.WithAttributes(attribute.String("darely.command", claims.Command.Name)))
	defer span.End()

	text, err := s.dispatch(ctx, initiator, claims.Command)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.writeError(w, err)
		return
	}

	var response messageResponse
	response.Message.ID = uuid.NewString()
	response.Message.Text = text
	writeJSON(w, http.StatusOK, response)
}

// writeError surfaces recoverable failures as structured payloads. Fatal
// kinds abort only the current request; the process keeps serving.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	if code == apperrors.CodeStorageCorrupted || code == apperrors.CodeRegionExhausted {
		log.Printf("bot command aborted: %v", err)
	}
	var response errorResponse
	response.Error.Code = string(code)
	response.Error.Message = err.Error()
	writeJSON(w, code.HTTPStatus(), response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
