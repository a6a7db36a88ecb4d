package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"campaign-planner/backend/internal/ai"
	"campaign-planner/backend/internal/campaign"
	"campaign-planner/backend/internal/store"
)

var (
	// ErrNoPlatform rejects operations that need a platform selection first.
	ErrNoPlatform = errors.New("no platform selected")
	// ErrSelectionChanged reports that a fetch result was discarded because
	// the live selection moved on while the request was in flight.
	ErrSelectionChanged = errors.New("selection changed during fetch")
	// ErrIncomplete rejects script generation before every question is answered.
	ErrIncomplete = errors.New("question flow not complete")
)

// QuestionService is the slice of the planner client the flow engine needs.
type QuestionService interface {
	AdTypes(ctx context.Context, platform string, campaignData json.RawMessage) ([]string, error)
	Questions(ctx context.Context, platform, adType string, campaignData json.RawMessage) ([]ai.Question, error)
	GenerateScript(ctx context.Context, req ai.ScriptRequest) (string, error)
}

// selection is the persisted slice of the flow state. The answer map lives
// under its own key so its wire shape stays a plain question→answer map.
type selection struct {
	Platform string `json:"platform"`
	AdType   string `json:"adType,omitempty"`
}

// Engine walks one session through the server-driven question flow for a
// platform/ad-type pair. Every answer is persisted as it is recorded, so a
// reload loses at most the currently-unanswered question.
type Engine struct {
	mu      sync.Mutex
	session string
	db      *store.Database
	client  QuestionService

	platform string
	adType   string
	adTypes  []string
	schema   []ai.Question
	answers  map[string]string
	index    int
	complete bool

	// gen invalidates in-flight fetches whenever the selection changes.
	gen uint64
}

// New constructs the flow engine for a session. Call Resume to restore a
// previously persisted flow.
func New(session string, db *store.Database, client QuestionService) *Engine {
	return &Engine{
		session: session,
		db:      db,
		client:  client,
		answers: map[string]string{},
	}
}

// SelectPlatform starts a fresh flow for the named platform. Any state from
// a previous flow, including persisted answers, is cleared before the
// allowed ad types are fetched.
func (e *Engine) SelectPlatform(ctx context.Context, name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, campaign.NewValidationError("platform is required")
	}

	e.mu.Lock()
	e.platform = name
	e.adType = ""
	e.adTypes = nil
	e.schema = nil
	e.answers = map[string]string{}
	e.index = 0
	e.complete = false
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.persistSelection()
	e.clearAnswers()

	types, err := e.client.AdTypes(ctx, name, e.campaignContext())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil, ErrSelectionChanged
	}
	e.adTypes = types
	return append([]string(nil), types...), nil
}

// SelectAdType fetches the question schema for the current platform and the
// given ad type. The previous schema and answers are cleared first.
func (e *Engine) SelectAdType(ctx context.Context, adType string) ([]ai.Question, error) {
	adType = strings.TrimSpace(adType)
	if adType == "" {
		return nil, campaign.NewValidationError("ad type is required")
	}

	e.mu.Lock()
	if e.platform == "" {
		e.mu.Unlock()
		return nil, ErrNoPlatform
	}
	platform := e.platform
	e.adType = adType
	e.schema = nil
	e.answers = map[string]string{}
	e.index = 0
	e.complete = false
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.persistSelection()
	e.clearAnswers()

	schema, err := e.client.Questions(ctx, platform, adType, e.campaignContext())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil, ErrSelectionChanged
	}
	e.schema = schema
	return append([]ai.Question(nil), schema...), nil
}

// AnswerCurrent records the answer for the current question under its exact
// text and persists the whole answer map in the same call.
func (e *Engine) AnswerCurrent(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return campaign.NewValidationError("answer cannot be empty")
	}

	e.mu.Lock()
	q := e.current()
	if q == nil {
		e.mu.Unlock()
		return campaign.NewValidationError("no current question")
	}
	e.answers[q.Text] = value
	snapshot := e.copyAnswers()
	session := e.session
	e.mu.Unlock()

	if err := e.db.SetJSON(session, store.KeyScriptQA, snapshot); err != nil {
		return err
	}
	return nil
}

// GoNext advances to the next question, or flips the flow complete when the
// last question is already answered. Without a recorded answer for the
// current question it is a no-op and reports false.
func (e *Engine) GoNext() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.current()
	if q == nil {
		return false
	}
	if _, ok := e.answers[q.Text]; !ok {
		return false
	}
	if e.index >= len(e.schema)-1 {
		e.complete = true
		return true
	}
	e.index++
	return true
}

// IsComplete reports whether every question has a non-empty answer and the
// user has moved past the last one.
func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete && e.allAnswered()
}

// CurrentQuestion returns the question awaiting an answer, or nil.
func (e *Engine) CurrentQuestion() *ai.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.current()
	if q == nil {
		return nil
	}
	out := *q
	return &out
}

// GenerateScript assembles the full context and answer set into one request
// and persists the returned script, overwriting any previous one.
func (e *Engine) GenerateScript(ctx context.Context) (string, error) {
	e.mu.Lock()
	if !(e.complete && e.allAnswered()) {
		e.mu.Unlock()
		return "", ErrIncomplete
	}
	req := ai.ScriptRequest{
		Platform:     e.platform,
		AdType:       e.adType,
		CampaignData: e.campaignContext(),
		Answers:      e.copyAnswers(),
	}
	e.mu.Unlock()

	script, err := e.client.GenerateScript(ctx, req)
	if err != nil {
		return "", err
	}
	if err := e.db.Set(e.session, store.KeyGeneratedScript, script); err != nil {
		return "", err
	}
	return script, nil
}

// Resume restores a persisted flow after a reload: the selection and answer
// map are read back, the schema is re-fetched, and the index fast-forwards
// to the first unanswered question.
func (e *Engine) Resume(ctx context.Context) error {
	var sel selection
	if !e.db.GetJSON(e.session, store.KeyScriptFlow, &sel) || sel.Platform == "" {
		return nil
	}

	e.mu.Lock()
	e.platform = sel.Platform
	e.adType = sel.AdType
	e.schema = nil
	e.answers = map[string]string{}
	e.index = 0
	e.complete = false
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	types, err := e.client.AdTypes(ctx, sel.Platform, e.campaignContext())
	if err != nil {
		return err
	}

	var schema []ai.Question
	if sel.AdType != "" {
		schema, err = e.client.Questions(ctx, sel.Platform, sel.AdType, e.campaignContext())
		if err != nil {
			return err
		}
	}

	answers := map[string]string{}
	e.db.GetJSON(e.session, store.KeyScriptQA, &answers)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return ErrSelectionChanged
	}
	e.adTypes = types
	e.schema = schema
	e.answers = answers
	e.index = 0
	for i, q := range schema {
		e.index = i
		if _, ok := answers[q.Text]; !ok {
			return nil
		}
	}
	if len(schema) > 0 {
		e.complete = true
	}
	return nil
}

// Platform reports the live platform selection.
func (e *Engine) Platform() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.platform
}

// AdType reports the live ad-type selection.
func (e *Engine) AdType() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adType
}

// AdTypes lists the ad types fetched for the current platform.
func (e *Engine) AdTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.adTypes...)
}

// Schema returns the fetched question schema.
func (e *Engine) Schema() []ai.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ai.Question(nil), e.schema...)
}

// Index reports the current question index.
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// Answers returns a copy of the recorded answer map.
func (e *Engine) Answers() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyAnswers()
}

func (e *Engine) current() *ai.Question {
	if e.complete || e.index >= len(e.schema) {
		return nil
	}
	return &e.schema[e.index]
}

func (e *Engine) allAnswered() bool {
	if len(e.schema) == 0 {
		return false
	}
	for _, q := range e.schema {
		if strings.TrimSpace(e.answers[q.Text]) == "" {
			return false
		}
	}
	return true
}

func (e *Engine) copyAnswers() map[string]string {
	out := make(map[string]string, len(e.answers))
	for k, v := range e.answers {
		out[k] = v
	}
	return out
}

// campaignContext reads the committed campaign package verbatim so fetches
// carry the full context the recommendation produced.
func (e *Engine) campaignContext() json.RawMessage {
	raw, ok := e.db.Get(e.session, store.KeyCampaignData)
	if !ok {
		return nil
	}
	return json.RawMessage(raw)
}

func (e *Engine) persistSelection() {
	e.mu.Lock()
	sel := selection{Platform: e.platform, AdType: e.adType}
	e.mu.Unlock()
	if err := e.db.SetJSON(e.session, store.KeyScriptFlow, sel); err != nil {
		logrus.WithError(err).WithField("session", e.session).Warn("persist flow selection")
	}
}

func (e *Engine) clearAnswers() {
	if err := e.db.Remove(e.session, store.KeyScriptQA); err != nil {
		logrus.WithError(err).WithField("session", e.session).Warn("clear persisted answers")
	}
}
