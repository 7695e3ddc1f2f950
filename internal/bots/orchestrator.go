package bots

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/config"
	"openclaw/internal/storage"
)

// maxReplyLen caps a synthesized bot reply.
const maxReplyLen = 700

// systemRole is the built-in opening of every bot prompt.
const systemRole = "You are a helpful chat assistant on an instant-messaging server. " +
	"Answer briefly and stay on topic."

// Reply is a composed bot response.
type Reply struct {
	Text      string
	AudioB64  string
	AudioMime string
	Voice     string
}

// Orchestrator turns user messages addressed to a virtual bot into replies
// via the external text-generation service, with canned fallbacks and
// optional TTS.
type Orchestrator struct {
	cfg    config.BotsConfig
	store  storage.Store
	rules  *RulesSource
	docs   *DocsIndex
	tts    *TTS
	client *http.Client
}

// NewOrchestrator wires the bot reply pipeline.
func NewOrchestrator(cfg config.BotsConfig, store storage.Store) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		store: store,
		rules: NewRulesSource(cfg.RulesPath),
		docs:  NewDocsIndex(cfg.DocsPath),
		tts:   NewTTS(cfg),
		client: &http.Client{
			Timeout: time.Duration(cfg.TextGenTimeout) * time.Second,
		},
	}
}

// Compose builds the reply to a message the caller sent to bot. The caller
// name is the folded username; callerIsAdmin selects the per-admin rules
// override.
func (o *Orchestrator) Compose(caller string, callerIsAdmin bool, bot, message string) Reply {
	text, err := o.generate(caller, callerIsAdmin, bot, message)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			log.Printf("bots: text generation for %s failed: %v", bot, err)
		}
		text = fallbackLine(message)
	}
	if len(text) > maxReplyLen {
		text = text[:maxReplyLen]
	}

	reply := Reply{Text: text}
	if o.tts != nil {
		voice := o.cfg.Voice(bot)
		if voice != "" {
			wav, err := o.tts.Synthesize(text, voice)
			if err != nil {
				log.Printf("bots: tts for %s failed: %v", bot, err)
			} else {
				reply.AudioB64 = base64.StdEncoding.EncodeToString(wav)
				reply.AudioMime = "audio/wav"
				reply.Voice = voice
			}
		}
	}
	return reply
}

// EffectiveRules returns the rules text applied for this caller: the stored
// per-admin override when present (seeding it from the global source on
// first read), else the global rules.
func (o *Orchestrator) EffectiveRules(caller string, callerIsAdmin bool, bot string) string {
	global := o.rules.Rules()
	if !callerIsAdmin {
		return global
	}
	override, err := o.store.GetBotRuleOverride(caller, bot)
	if err == nil {
		return override.Rules
	}
	if errors.Is(err, apperrors.ErrNotFound) && global != "" {
		if err := o.store.SetBotRuleOverride(caller, bot, global); err != nil {
			log.Printf("bots: seed rules override for %s/%s: %v", caller, bot, err)
		}
	}
	return global
}

// SetRules stores a per-admin override, bounded at MaxRulesLen.
func (o *Orchestrator) SetRules(admin, bot, rules string) error {
	if len(rules) > MaxRulesLen {
		return fmt.Errorf("rules text exceeds %d characters", MaxRulesLen)
	}
	return o.store.SetBotRuleOverride(admin, bot, rules)
}

// ResetRules drops a per-admin override so the global source applies again.
func (o *Orchestrator) ResetRules(admin, bot string) error {
	return o.store.DeleteBotRuleOverride(admin, bot)
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (o *Orchestrator) generate(caller string, callerIsAdmin bool, bot, message string) (string, error) {
	if o.cfg.TextGenURL == "" {
		return "", fmt.Errorf("no text generation service configured")
	}

	var prompt strings.Builder
	if purpose := o.cfg.Purposes[bot]; purpose != "" {
		fmt.Fprintf(&prompt, "Your purpose: %s\n", purpose)
	}
	if services := o.cfg.Services[bot]; services != "" {
		fmt.Fprintf(&prompt, "Services you offer: %s\n", services)
	}
	if docCtx := o.docs.Context(message); docCtx != "" {
		fmt.Fprintf(&prompt, "Relevant documentation:\n%s\n", docCtx)
	}
	if rules := o.EffectiveRules(caller, callerIsAdmin, bot); rules != "" {
		fmt.Fprintf(&prompt, "Rules you must follow:\n%s\n", rules)
	}
	fmt.Fprintf(&prompt, "User message: %s", message)

	system := o.cfg.SystemPrompt
	if system == "" {
		system = systemRole
	}

	body, err := json.Marshal(generateRequest{
		Model:  o.cfg.TextGenModel,
		Prompt: prompt.String(),
		System: system,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	resp, err := o.client.Post(o.cfg.TextGenURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("text service status %d", resp.StatusCode)
	}
	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("text service: %s", out.Error)
	}
	return out.Response, nil
}

// fallbackLine picks a canned reply by keyword when generation fails.
func fallbackLine(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi "):
		return "Hello! I'm having trouble reaching my brain right now, but I'm listening."
	case strings.Contains(lower, "help"):
		return "I'd love to help, but my reply service is unavailable. Please try again shortly."
	case strings.Contains(lower, "thank"):
		return "You're welcome!"
	default:
		return "Sorry, I can't come up with a proper answer right now. Please try again later."
	}
}
