package agentcontext

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxline-ai/voxline/src/artifacts"
	"github.com/voxline-ai/voxline/src/logger"
)

const snippetMaxLen = 80

// ClientInfo is what the call-worker knows about the caller at call
// start. Returning may be forced by the caller; otherwise it is derived
// from the presence of per-client artifacts.
type ClientInfo struct {
	ClientID        string
	Name            string
	Phone           string
	Returning       bool
	PreviousSummary string
}

// Composition is the output handed to the dialogue stage
type Composition struct {
	SystemPrompt string
	Greeting     string
	Returning    bool
}

// Composer builds the system context string for the dialogue stage from
// static persona material plus the client's historical artifacts. The
// output is deterministic: the same inputs always produce the same
// bytes.
type Composer struct {
	store         artifacts.Store
	persona       string
	strategy      string
	knowledgeBase string
	log           *logger.Logger
}

func NewComposer(store artifacts.Store, persona, strategy, knowledgeBase string) *Composer {
	return &Composer{
		store:         store,
		persona:       persona,
		strategy:      strategy,
		knowledgeBase: knowledgeBase,
		log:           logger.WithPrefix("Composer"),
	}
}

// Compose assembles the system prompt. Sections appear in a fixed
// order and a section is skipped entirely when its source is empty:
// persona, client identity, previous-call highlight, expert suggestion,
// conversation strategy, knowledge base, mandatory greeting.
func (c *Composer) Compose(ctx context.Context, client ClientInfo) Composition {
	highlight := c.readArtifact(ctx, client.ClientID, artifacts.KindHighlight)
	suggestion := c.readArtifact(ctx, client.ClientID, artifacts.KindExpertSuggestion)

	returning := client.Returning || highlight != "" || suggestion != ""

	summary := client.PreviousSummary
	if summary == "" {
		summary = SummarySnippet(highlight)
	}

	greeting := c.greeting(client.Name, returning, summary)

	var sections []string
	if c.persona != "" {
		sections = append(sections, c.persona)
	}
	if ident := identityBlock(client, returning); ident != "" {
		sections = append(sections, ident)
	}
	if highlight != "" {
		sections = append(sections, "PREVIOUS CALL HIGHLIGHT:\n"+highlight)
	}
	if suggestion != "" {
		sections = append(sections, "EXPERT SUGGESTION:\n"+suggestion)
	}
	if c.strategy != "" {
		sections = append(sections, "CONVERSATION STRATEGY:\n"+c.strategy)
	}
	if c.knowledgeBase != "" {
		sections = append(sections, "KNOWLEDGE BASE:\n"+c.knowledgeBase)
	}
	if greeting != "" {
		sections = append(sections, fmt.Sprintf(
			"MANDATORY GREETING:\nOpen the conversation with exactly this greeting, word for word, before saying anything else:\n%q", greeting))
	}

	return Composition{
		SystemPrompt: strings.Join(sections, "\n\n"),
		Greeting:     greeting,
		Returning:    returning,
	}
}

func (c *Composer) readArtifact(ctx context.Context, clientID, kind string) string {
	if clientID == "" {
		return ""
	}
	content, err := c.store.ReadArtifact(ctx, clientID, kind)
	if err != nil {
		// Composition degrades to a first-call context on read failure
		c.log.Warn("read %s for client %s failed: %v", kind, clientID, err)
		return ""
	}
	return content
}

func (c *Composer) greeting(name string, returning bool, summary string) string {
	first := firstName(name)
	if !returning {
		return fmt.Sprintf("Hello %s! It's great to meet you. How are you doing today?", first)
	}
	if summary != "" {
		return fmt.Sprintf("Welcome back %s! Last time we spoke about %s How have you been?", first, ensureSentenceEnd(summary))
	}
	return fmt.Sprintf("Welcome back %s! It's good to talk to you again. How have you been?", first)
}

func identityBlock(client ClientInfo, returning bool) string {
	var b strings.Builder
	b.WriteString("CLIENT INFORMATION:")
	if client.Name != "" {
		fmt.Fprintf(&b, "\nName: %s", client.Name)
	}
	if client.Phone != "" {
		fmt.Fprintf(&b, "\nPhone: %s", client.Phone)
	}
	fmt.Fprintf(&b, "\nReturning client: %t", returning)
	return b.String()
}

// SummarySnippet extracts a short digest from a highlight artifact: the
// first line that carries prose, truncated to 80 characters with an
// ellipsis.
func SummarySnippet(highlight string) string {
	for _, line := range strings.Split(highlight, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") {
			continue
		}
		runes := []rune(line)
		if len(runes) <= snippetMaxLen {
			return line
		}
		return string(runes[:snippetMaxLen-3]) + "..."
	}
	return ""
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func ensureSentenceEnd(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
