package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/llm"
	"github.com/ruriclub/supportdesk/pkg/logger"
	"github.com/ruriclub/supportdesk/pkg/metrics"
)

// Canned replies of the assistant.
const (
	ReplyHelp      = "Don't worry — I'll connect you to a live agent now."
	ReplyUnrelated = "I didn't quite understand that — let me connect you to a live agent for better assistance."
	ReplyGreeting  = "Hello! How can I help you today?"
	ReplyDefault   = "I'm not sure about that. Would you like me to connect you to a live agent?"
)

// Reply sources, used as a metric label.
const (
	SourceRule    = "rule"
	SourceFAQ     = "faq"
	SourceLLM     = "llm"
	SourceDefault = "default"
)

var (
	helpKeywords = []string{
		"help", "support", "problem", "issue", "error", "stuck",
		"agent", "human", "representative", "staff",
	}
	emotionalPattern = regexp.MustCompile(`\b(love|miss|like|hate|sad|angry)\b`)
	greetings        = []string{"hi", "hello", "hey", "good morning", "good afternoon"}
)

const assistantPrompt = "You are Ruri AI, the customer support assistant of an online shop. " +
	"Answer in at most three short sentences. If you cannot help, offer to connect the customer to a live agent."

// FAQEntry is one question and answer known to the assistant. Questions
// are stored lower case.
type FAQEntry struct {
	Question string
	Answer   string
}

// DefaultFAQ is used when no FAQ file is configured.
var DefaultFAQ = []FAQEntry{
	{Question: "what are your store hours", Answer: "Our online shop is open 24/7. Live agents are available 9:00 to 18:00, Monday to Saturday."},
	{Question: "how do i track my order", Answer: "Open your profile and select the order to see its tracking status."},
	{Question: "what is your return policy", Answer: "Items can be returned within 30 days of delivery in their original packaging."},
	{Question: "how long does shipping take", Answer: "Standard shipping takes 3 to 5 business days."},
	{Question: "what payment methods do you accept", Answer: "We accept credit and debit cards, GCash and cash on delivery."},
}

// LoadFAQ reads question,answer rows from a CSV file. A header row whose
// first cell is "question" is skipped; rows with an empty cell are ignored.
func LoadFAQ(path string) ([]FAQEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FAQ file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []FAQEntry
	for line := 0; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read FAQ file: %w", err)
		}
		if len(rec) < 2 {
			continue
		}
		q := strings.ToLower(strings.TrimSpace(rec[0]))
		a := strings.TrimSpace(rec[1])
		if q == "" || a == "" || (line == 0 && q == "question") {
			continue
		}
		entries = append(entries, FAQEntry{Question: q, Answer: a})
	}
	return entries, nil
}

// Responder produces the assistant's reply to a client message. Rules are
// tried in order: help keywords, emotional or unrelated wording, greetings,
// exact FAQ match, partial FAQ match, the LLM fallback and the default.
type Responder struct {
	faq    []FAQEntry
	exact  map[string]string
	llm    llm.Client
	logger *logger.Logger
}

// NewResponder creates a responder. fallback may be nil.
func NewResponder(faq []FAQEntry, fallback llm.Client, log *logger.Logger) *Responder {
	exact := make(map[string]string, len(faq))
	for _, e := range faq {
		if _, ok := exact[e.Question]; !ok {
			exact[e.Question] = e.Answer
		}
	}
	return &Responder{faq: faq, exact: exact, llm: fallback, logger: log}
}

// Respond returns the reply text and the rule that produced it.
func (r *Responder) Respond(ctx context.Context, message string) (string, string) {
	input := strings.ToLower(strings.TrimSpace(message))

	for _, k := range helpKeywords {
		if strings.Contains(input, k) {
			return ReplyHelp, SourceRule
		}
	}
	if emotionalPattern.MatchString(input) {
		return ReplyUnrelated, SourceRule
	}
	for _, g := range greetings {
		if input == g {
			return ReplyGreeting, SourceRule
		}
	}
	if answer, ok := r.exact[input]; ok {
		return answer, SourceFAQ
	}
	for _, e := range r.faq {
		if strings.Contains(input, e.Question) {
			return e.Answer, SourceFAQ
		}
	}
	if reply, ok := r.complete(ctx, message); ok {
		return reply, SourceLLM
	}
	return ReplyDefault, SourceDefault
}

func (r *Responder) complete(ctx context.Context, message string) (string, bool) {
	if r.llm == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	resp, err := r.llm.Complete(ctx, &llm.CompletionRequest{
		System:      assistantPrompt,
		Messages:    []llm.ChatMessage{{Role: "user", Content: message}},
		MaxTokens:   256,
		Temperature: 0.3,
	})
	if err != nil {
		metrics.RecordLLMCall(r.llm.Name(), "error", 0, 0, 0)
		r.logger.Warn("llm fallback failed", zap.String("provider", r.llm.Name()), zap.Error(err))
		return "", false
	}
	metrics.RecordLLMCall(r.llm.Name(), "success", float64(resp.LatencyMs)/1000, resp.TokensIn, resp.TokensOut)

	reply := strings.TrimSpace(resp.Content)
	return reply, reply != ""
}
