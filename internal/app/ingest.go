package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/storymill/storymill/internal/cli"
	"github.com/storymill/storymill/internal/reader"
	payloadschema "github.com/storymill/storymill/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	payloadInline := fs.String("payload", "", "Article payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to a file with the article payload JSON")
	fetchBody := fs.Bool("fetch", false, "Fetch and extract the article body when the payload has none")
	timeout := fs.Duration("timeout", 60*time.Second, "Overall timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	raw, err := readPayload(*payloadInline, *payloadFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload: %v\n", err)
		return 2
	}

	payload, err := payloadschema.ValidateArticlePayload(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := newRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer rt.close()

	if *fetchBody && payload.BodyText == nil && payload.BodyHTML == nil {
		text, fetchErr := reader.FetchText(ctx, payload.URL, payload.Title)
		if fetchErr != nil {
			rt.logger.Warn().Err(fetchErr).Str("url", payload.URL).Msg("body fetch failed, ingesting without body")
		} else {
			payload.BodyText = &text
		}
	}

	result, err := rt.newIngest().IngestOne(ctx, payload)
	if err != nil {
		rt.logger.Error().Err(err).Str("url", payload.URL).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	if err := printJSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func readPayload(inline, file string) (json.RawMessage, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)

	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --payload or --payload-file, not both")
	case inline != "":
		return json.RawMessage(inline), nil
	case file != "":
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return json.RawMessage(content), nil
	default:
		return nil, fmt.Errorf("one of --payload or --payload-file is required")
	}
}
