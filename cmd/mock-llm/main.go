// Command mock-llm runs internal/llm/mockserver as a standalone
// OpenAI-compatible fixture server for offline pipeline testing against
// insurekb's capability-keyed models (claude-sonnet, claude-haiku,
// claude-opus).
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/c360studio/insurekb/internal/llm/mockserver"
)

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	srv, err := mockserver.NewFromDir(*fixtureDir)
	if err != nil {
		log.Fatalf("failed to load fixtures from %s: %v", *fixtureDir, err)
	}

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock LLM server listening on %s, fixtures from %s", addr, *fixtureDir)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
