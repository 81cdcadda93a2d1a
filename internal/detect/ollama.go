package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ollama/ollama/api"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.2:3b"

// OllamaClassifier asks a local Ollama model to tag named entities and maps
// the returned strings back to byte spans of the input.
type OllamaClassifier struct {
	client *api.Client
	model  string
}

// NewOllamaClassifier creates a classifier against host. An empty host reads
// OLLAMA_HOST from the environment.
func NewOllamaClassifier(host, model string) (*OllamaClassifier, error) {
	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, errors.Wrap(err, "creating ollama client")
		}
		client = c
	} else {
		u, err := url.Parse(host)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing ollama host %q", host)
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaClassifier{client: client, model: model}, nil
}

type ollamaEntities struct {
	Entities []struct {
		Text string `json:"text"`
		Type string `json:"type"`
	} `json:"entities"`
}

const ollamaPrompt = `Extract personal data from the text below.

Return ONLY a JSON object with one key "entities", an array of objects with
two string fields: "text" (copied exactly from the input) and "type" (one of
PERSON, LOCATION, PHONE_NUMBER, EMAIL_ADDRESS).

Text:
%s
`

// Classify runs one non-streaming generation and returns a span for every
// occurrence of each reported entity text.
func (o *OllamaClassifier) Classify(ctx context.Context, text string) ([]Span, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: fmt.Sprintf(ollamaPrompt, text),
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
	}

	var resp strings.Builder
	err := o.client.Generate(ctx, req, func(r api.GenerateResponse) error {
		resp.WriteString(r.Response)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "ollama generate")
	}

	var parsed ollamaEntities
	if err := json.Unmarshal([]byte(cleanJSON(resp.String())), &parsed); err != nil {
		return nil, errors.Wrap(err, "parsing ollama response")
	}

	var spans []Span
	seen := make(map[Span]bool)
	for _, e := range parsed.Entities {
		needle := strings.TrimSpace(e.Text)
		if needle == "" || e.Type == "" {
			continue
		}
		for _, start := range indexAll(text, needle) {
			s := Span{Type: strings.ToUpper(e.Type), Start: start, End: start + len(needle), Score: 1}
			if !seen[s] {
				seen[s] = true
				spans = append(spans, s)
			}
		}
	}
	return spans, nil
}

func indexAll(s, sub string) []int {
	var out []int
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], sub)
		if i < 0 {
			break
		}
		out = append(out, off+i)
		off += i + len(sub)
	}
	return out
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
