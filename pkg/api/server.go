package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/config"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/controlplane"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/llm"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/types"
)

// Server hosts the Gin engine in front of the control plane.
type Server struct {
	Engine *gin.Engine
	cp     *controlplane.ControlPlane
	addr   string
	apiKey string
	log    *slog.Logger
}

// NewServer constructs the HTTP API server.
func NewServer(cfg config.HTTPConfig, cp *controlplane.ControlPlane, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	srv := &Server{
		Engine: engine,
		cp:     cp,
		addr:   cfg.Addr,
		apiKey: cfg.APIKey,
		log:    logger.With("component", "api"),
	}

	engine.Use(srv.requestLogger())

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	engine.GET("/health", health)
	engine.GET("/healthz", health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/api/openapi.json", srv.handleOpenAPI)

	v1 := engine.Group("/api/v1", srv.apiKeyMiddleware())
	v1.GET("/tools", srv.handleListTools)
	v1.POST("/tools/execute", srv.handleExecute)
	v1.POST("/tools/answer", srv.handleAnswer)
	v1.POST("/undo", srv.handleUndo)
	v1.GET("/modifications", srv.handleModifications)
	v1.GET("/bridge", srv.handleBridgeStatus)
	v1.GET("/bridge/snapshot", srv.handleSnapshot)
	v1.POST("/bridge/refresh", srv.handleRefresh)
	v1.POST("/bridge/commands", srv.handleCommand)

	return srv
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) apiKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			return
		}
		key := c.GetHeader("X-API-Key")
		if key == "" || key != s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) handleListTools(c *gin.Context) {
	f, err := llm.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": llm.Catalog(f, s.cp.Engine().Tools())})
}

// handleAnswer runs a provider tool-call payload and returns the provider's
// reply shape. Tool failures travel inside the reply.
func (s *Server) handleAnswer(c *gin.Context) {
	f, err := llm.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body"})
		return
	}

	reply, err := llm.Answer(c.Request.Context(), f, payload, s.cp.Engine().Execute)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reply)
}

type executeRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name" binding:"required"`
	Arguments map[string]any `json:"arguments"`
}

// handleExecute always answers 200 once the request parses: tool failures
// are results, not transport errors.
func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if req.ID == "" {
		req.ID = types.GenerateToolCallID()
	}

	result := s.cp.Engine().Execute(c.Request.Context(), types.ToolCall{
		ID:        req.ID,
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleUndo(c *gin.Context) {
	c.JSON(http.StatusOK, s.cp.Engine().UndoLastModification(c.Request.Context()))
}

func (s *Server) handleModifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modifications": s.cp.Engine().Modifications()})
}

func (s *Server) handleBridgeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.cp.Status())
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snapshot, ok := s.cp.Snapshot()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot received yet"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.cp.RequestStateRefresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

type commandRequest struct {
	Command string          `json:"command" binding:"required"`
	Params  json.RawMessage `json:"params"`
}

func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result, err := s.cp.SendCommand(c.Request.Context(), req.Command, req.Params)
	if err != nil {
		c.JSON(commandStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func commandStatus(err error) int {
	var remote *bridge.RemoteError
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, bridge.ErrCommandTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleOpenAPI(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	_, _ = c.Writer.Write([]byte(openAPISchema))
}

const openAPISchema = `{
  "openapi": "3.0.0",
  "info": {
    "title": "neuralmap-bridge API",
    "version": "1.0.0"
  },
  "paths": {
    "/api/v1/tools": {
      "get": {
        "summary": "List the tool catalog",
        "responses": {"200": {"description": "tool definitions"}}
      }
    },
    "/api/v1/tools/execute": {
      "post": {
        "summary": "Execute a tool call",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["name"],
                "properties": {
                  "id": {"type": "string"},
                  "name": {"type": "string"},
                  "arguments": {"type": "object"}
                }
              }
            }
          }
        },
        "responses": {
          "200": {
            "description": "tool result",
            "content": {
              "application/json": {
                "schema": {
                  "type": "object",
                  "properties": {
                    "success": {"type": "boolean"},
                    "result": {},
                    "error": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    },
    "/api/v1/tools/answer": {
      "post": {
        "summary": "Answer provider tool calls (format=openai|gemini|native)",
        "responses": {"200": {"description": "provider reply"}, "400": {"description": "malformed payload"}}
      }
    },
    "/api/v1/undo": {
      "post": {
        "summary": "Undo the most recent file modification",
        "responses": {"200": {"description": "tool result"}}
      }
    },
    "/api/v1/modifications": {
      "get": {
        "summary": "List the modification log, oldest first",
        "responses": {"200": {"description": "modification list"}}
      }
    },
    "/api/v1/bridge": {
      "get": {
        "summary": "Bridge connection status",
        "responses": {"200": {"description": "status"}}
      }
    },
    "/api/v1/bridge/snapshot": {
      "get": {
        "summary": "Latest application snapshot",
        "responses": {"200": {"description": "snapshot"}, "404": {"description": "no snapshot yet"}}
      }
    },
    "/api/v1/bridge/refresh": {
      "post": {
        "summary": "Ask the instance to push its state again",
        "responses": {"202": {"description": "requested"}}
      }
    },
    "/api/v1/bridge/commands": {
      "post": {
        "summary": "Send a command to the connected instance",
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["command"],
                "properties": {
                  "command": {"type": "string"},
                  "params": {}
                }
              }
            }
          }
        },
        "responses": {
          "200": {"description": "command result"},
          "502": {"description": "instance rejected the command"},
          "503": {"description": "bridge not connected"},
          "504": {"description": "command timed out"}
        }
      }
    }
  }
}`
