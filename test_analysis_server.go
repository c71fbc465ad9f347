package main

import (
	"encoding/base64"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liviaellen/audio-sentiment-profiling/internal/audio"
)

type AnalysisRequest struct {
	Data   string                 `json:"data"`
	Models map[string]interface{} `json:"models"`
}

type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type PredictionWindow struct {
	Time     map[string]float64 `json:"time"`
	Emotions []EmotionScore     `json:"emotions"`
}

type AnalysisResponse struct {
	Prosody struct {
		Predictions []PredictionWindow `json:"predictions"`
	} `json:"prosody"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func analysisHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	apiKey := r.Header.Get("X-Api-Key")

	log.Printf("🔌 ANALYSIS CONNECTION OPENED:")
	log.Printf("  ═══════════════════════════════════")
	log.Printf("    Remote: %s", r.RemoteAddr)
	log.Printf("    API Key Set: %v", apiKey != "")

	for {
		var req AnalysisRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("❌ Read error: %v", err)
			}
			return
		}

		payload, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			log.Printf("❌ Invalid base64 payload: %v", err)
			conn.WriteJSON(map[string]any{"error": "invalid base64 payload"})
			continue
		}

		log.Printf("  ═══════════════════════════════════")
		log.Printf("  🎧 Audio Info:")
		log.Printf("    Payload Size: %d bytes", len(payload))

		if info, err := audio.GetInfo(payload); err == nil {
			log.Printf("    Sample Rate: %d Hz", info.SampleRate)
			log.Printf("    Duration: %.3f seconds", info.Duration)
		} else {
			log.Printf("    ⚠️  Not a valid WAV container: %v", err)
		}

		models := make([]string, 0, len(req.Models))
		for name := range req.Models {
			models = append(models, name)
		}
		log.Printf("    Requested Models: %v", models)

		// Simulate inference time
		time.Sleep(200 * time.Millisecond)

		var resp AnalysisResponse
		resp.Prosody.Predictions = []PredictionWindow{
			{
				Time: map[string]float64{"begin": 0.0, "end": 2.5},
				Emotions: []EmotionScore{
					{Name: "Calmness", Score: 0.71},
					{Name: "Joy", Score: 0.42},
					{Name: "Concentration", Score: 0.33},
				},
			},
			{
				Time: map[string]float64{"begin": 2.5, "end": 5.0},
				Emotions: []EmotionScore{
					{Name: "Excitement", Score: 0.58},
					{Name: "Interest", Score: 0.49},
					{Name: "Surprise (positive)", Score: 0.21},
				},
			},
		}

		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("❌ Write error: %v", err)
			return
		}

		log.Printf("✅ ANALYSIS RESPONSE SENT: %d prediction windows", len(resp.Prosody.Predictions))
		log.Println("---")
	}
}

func main() {
	http.HandleFunc("/v0/stream/models", analysisHandler)

	port := ":9100"
	log.Printf("🚀 Test Analysis Server starting on port %s", port)
	log.Printf("📡 Endpoint: ws://localhost%s/v0/stream/models", port)
	log.Println("💡 Update your config to use: ws://localhost:9100/v0/stream/models")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
