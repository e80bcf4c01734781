package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fghsg9075-lab/aios/internal/config"
	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/dispatcher"
	"github.com/fghsg9075-lab/aios/internal/llm"
	_ "github.com/fghsg9075-lab/aios/internal/llm/compat"
	"github.com/fghsg9075-lab/aios/internal/routing"
	"github.com/fghsg9075-lab/aios/internal/server"
	"github.com/fghsg9075-lab/aios/internal/store/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"
)

const (
	mockPort = 9091
	appPort  = 8081
	benchKey = "bench-key-12345"
)

var unaryResp = []byte(`{"id":"bench-123","object":"chat.completion","created":1700000000,"model":"bench",` +
	`"choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],` +
	`"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)

var primaryFailures, backupHits atomic.Int64

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	failRate := flag.Float64("fail-rate", 0, "Fraction of primary vendor calls that fail with 500, forcing fallback")
	breaker := flag.Bool("breaker", false, "Enable the per-provider circuit breaker")
	flag.Parse()

	go startMockServer(*failRate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go startApp(ctx, *breaker)

	waitForApp(fmt.Sprintf("http://localhost:%d/health", appPort))

	fmt.Printf("Running benchmark: %s duration, %d req/s, primary fail rate %.0f%%\n", *duration, *rate, *failRate*100)

	targeter := func(t *vegeta.Target) error {
		t.Method = http.MethodPost
		t.URL = fmt.Sprintf("http://localhost:%d/v1/execute", appPort)
		t.Body = []byte(`{"type": "TEXT", "prompt": "Hello", "modelPreference": "CHAT_ENGINE"}`)
		t.Header = http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + benchKey},
		}
		return nil
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Printf("Primary 500s:    %d\n", primaryFailures.Load())
	fmt.Printf("Backup calls:    %d\n", backupHits.Load())
	fmt.Println("--------------------------------------------------")

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")
		seen := make(map[string]bool)
		for _, msg := range metrics.Errors {
			if len(seen) == 5 {
				break
			}
			if !seen[msg] {
				fmt.Println(msg)
				seen[msg] = true
			}
		}
	}
}

// startApp runs the HTTP surface in-process with a primary and a backup
// provider, both pointing at the mock vendor.
func startApp(ctx context.Context, breaker bool) {
	gin.SetMode(gin.ReleaseMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: strconv.Itoa(appPort), Env: "production", AdminKeys: []string{benchKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100000, Burst: 100000},
		Telemetry: config.TelemetryConfig{ServiceName: "aios-bench"},
	}

	opts := []dispatcher.Option{
		dispatcher.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		dispatcher.WithMetrics(dispatcher.NewMetrics(prometheus.NewRegistry())),
	}
	if breaker {
		opts = append(opts, dispatcher.WithBreaker(dispatcher.BreakerSettings{MaxFailures: 5, Timeout: time.Second}))
	}
	d := dispatcher.New(memory.New(), opts...)

	vendor := fmt.Sprintf("http://localhost:%d", mockPort)
	providers := []llm.ProviderConfig{
		{ID: "primary", Type: "openai", Name: "Primary", Enabled: true, BaseURL: vendor + "/primary/v1"},
		{ID: "backup", Type: "groq", Name: "Backup", Enabled: true, BaseURL: vendor + "/backup/v1"},
	}
	for _, p := range providers {
		// each key is exhausted after credential.ErrorThreshold failures
		for i := range 64 {
			p.APIKeys = append(p.APIKeys, credential.Credential{Key: fmt.Sprintf("mock-key-%s-%02d", p.ID, i), IsActive: true})
		}
		if err := d.UpdateProvider(p); err != nil {
			log.Fatalf("provider %s: %v", p.ID, err)
		}
	}
	err := d.UpdateRoutingTable(routing.Table{
		DefaultProviderID: "primary",
		FallbackOrder:     []string{"backup"},
		Mapping:           map[string]routing.Assignment{routing.ChatEngine: {ProviderID: "primary", ModelID: "bench"}},
	})
	if err != nil {
		log.Fatalf("routing: %v", err)
	}

	srv := server.New(cfg, zap.NewNop(), server.Deps{Dispatcher: d, Version: "bench"})
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("app: %v", err)
	}
}

func startMockServer(failRate float64) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /primary/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if rand.Float64() < failRate {
			primaryFailures.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		reply(w)
	})
	mux.HandleFunc("POST /backup/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		backupHits.Add(1)
		reply(w)
	})

	if err := http.ListenAndServe(fmt.Sprintf(":%d", mockPort), mux); err != nil {
		log.Fatalf("mock vendor: %v", err)
	}
}

func reply(w http.ResponseWriter) {
	time.Sleep(10 * time.Millisecond)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(unaryResp)
}

func waitForApp(url string) {
	for range 20 {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}
