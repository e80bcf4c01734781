package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/fghsg9075-lab/aios/internal/config"
	"github.com/fghsg9075-lab/aios/internal/credential"
	"github.com/fghsg9075-lab/aios/internal/dispatcher"
	_ "github.com/fghsg9075-lab/aios/internal/llm/compat"
	_ "github.com/fghsg9075-lab/aios/internal/llm/google"
	"github.com/fghsg9075-lab/aios/internal/store/driver"
	"go.uber.org/zap"
)

// seed writes provider credentials into the configured store, creating the
// provider when it does not exist yet. Usage:
//
//	go run ./cmd/seed -provider groq -keys gsk-one,gsk-two
func main() {
	provider := flag.String("provider", "", "Provider id (required)")
	kind := flag.String("type", "", "Adapter type for a new provider; defaults to the id")
	baseURL := flag.String("base-url", "", "Base URL for a new provider")
	keys := flag.String("keys", "", "Comma separated API keys")
	flag.Parse()

	if *provider == "" {
		log.Fatal("-provider is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	cs, err := driver.Open(ctx, cfg.Store, zap.NewNop())
	if err != nil {
		log.Fatal(err)
	}
	defer cs.Close()

	d := dispatcher.New(cs)
	if err := d.Load(ctx); err != nil {
		log.Fatal(err)
	}

	var secrets []string
	for _, k := range strings.Split(*keys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			secrets = append(secrets, k)
		}
	}

	err = d.ApplySeeds([]dispatcher.Seed{{ID: *provider, Type: *kind, BaseURL: *baseURL, Keys: secrets}})
	if err != nil {
		log.Fatal(err)
	}
	if err := d.Save(ctx); err != nil {
		log.Fatal(err)
	}

	p, _ := d.GetProvider(*provider)
	fmt.Printf("Provider %s (%s): %d credentials\n", p.ID, p.AdapterType(), len(p.APIKeys))
	for _, k := range p.APIKeys {
		fmt.Printf("  %s active=%t exhausted=%t errors=%d\n", credential.Mask(k.Key), k.IsActive, k.IsExhausted, k.ErrorCount)
	}
}
