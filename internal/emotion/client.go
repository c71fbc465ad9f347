package emotion

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// APIKeyHeader carries the inference service credential during the
// websocket handshake.
const APIKeyHeader = "X-Api-Key"

// Config contains emotion analysis client configuration
type Config struct {
	Endpoint string        // websocket URL of the streaming inference endpoint
	APIKey   string        // credential sent during the handshake
	Timeout  time.Duration // per-session deadline for dial, write, and read
}

// Client opens one streaming session per analyzed artifact.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	config Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// EmotionScore is one (emotion name, score) pair as returned by the
// inference model, order preserved.
type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TimeSpan is the interval a prediction window covers. Either bound may
// be absent when the remote model does not report it.
type TimeSpan struct {
	Begin *float64 `json:"begin"`
	End   *float64 `json:"end"`
}

// PredictionWindow is one time-bounded emotion prediction.
type PredictionWindow struct {
	Time     TimeSpan       `json:"time"`
	Emotions []EmotionScore `json:"emotions"`
}

// Outcome is the result of one analysis attempt. Success distinguishes a
// real prediction set from a degraded "unavailable" result; the request
// as a whole succeeds either way.
type Outcome struct {
	Success          bool               `json:"success"`
	Predictions      []PredictionWindow `json:"predictions"`
	TotalPredictions int                `json:"total_predictions,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Analyzed builds the positive outcome variant.
func Analyzed(predictions []PredictionWindow) Outcome {
	return Outcome{
		Success:          true,
		Predictions:      predictions,
		TotalPredictions: len(predictions),
	}
}

// Unavailable builds the degraded outcome variant.
func Unavailable(reason string) Outcome {
	return Outcome{
		Success:     false,
		Predictions: []PredictionWindow{},
		Error:       reason,
	}
}

// streamRequest is the single message sent over the inference session.
type streamRequest struct {
	Data   string `json:"data"` // base64-encoded WAV artifact
	Models struct {
		Prosody struct{} `json:"prosody"`
	} `json:"models"`
}

// streamResponse is the single reply read from the inference session.
type streamResponse struct {
	Prosody *struct {
		Predictions []PredictionWindow `json:"predictions"`
	} `json:"prosody"`
	Error string `json:"error,omitempty"`
}

// NewClient creates an emotion analysis client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// Analyze streams the artifact at path through one inference session and
// returns the mapped outcome.
//
// Analysis never fails the caller's request: credential problems, dial
// errors, malformed replies, and an empty prediction set all come back as
// the unavailable variant. No retries are attempted.
func (c *Client) Analyze(ctx context.Context, path string) Outcome {
	if c.config.APIKey == "" {
		return Unavailable("api key not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Error("Failed to read artifact for analysis", slog.String("error", err.Error()))
		return Unavailable(fmt.Sprintf("failed to read artifact: %v", err))
	}

	header := http.Header{}
	header.Set(APIKeyHeader, c.config.APIKey)

	conn, resp, err := c.dialer.DialContext(ctx, c.config.Endpoint, header)
	if err != nil {
		if resp != nil {
			c.logger.Error("Inference session handshake rejected",
				slog.Int("status", resp.StatusCode),
				slog.String("error", err.Error()),
			)
			return Unavailable(fmt.Sprintf("handshake rejected with status %d", resp.StatusCode))
		}
		c.logger.Error("Failed to open inference session", slog.String("error", err.Error()))
		return Unavailable(fmt.Sprintf("failed to connect: %v", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(c.config.Timeout)

	req := streamRequest{Data: base64.StdEncoding.EncodeToString(data)}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(&req); err != nil {
		c.logger.Error("Failed to send artifact", slog.String("error", err.Error()))
		return Unavailable(fmt.Sprintf("failed to send artifact: %v", err))
	}

	var reply streamResponse
	conn.SetReadDeadline(deadline)
	if err := conn.ReadJSON(&reply); err != nil {
		c.logger.Error("Failed to read inference result", slog.String("error", err.Error()))
		return Unavailable(fmt.Sprintf("failed to read result: %v", err))
	}

	// Best effort; the session served its single exchange either way.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return c.mapResponse(&reply)
}

// mapResponse converts the remote reply into an Outcome. Anything missing
// or malformed degrades to the unavailable variant rather than an error.
func (c *Client) mapResponse(reply *streamResponse) Outcome {
	if reply.Error != "" {
		c.logger.Warn("Inference service reported an error", slog.String("error", reply.Error))
		return Unavailable(reply.Error)
	}

	if reply.Prosody == nil || len(reply.Prosody.Predictions) == 0 {
		return Unavailable("no predictions returned")
	}

	// The remote service returns windows in chronological order; keep them
	// and their emotion scores exactly as received.
	return Analyzed(reply.Prosody.Predictions)
}
