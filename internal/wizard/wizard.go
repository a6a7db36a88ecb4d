package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"campaign-planner/backend/internal/campaign"
	"campaign-planner/backend/internal/store"
)

// Step identifies one stage of the intake wizard.
type Step int

const (
	StepBusinessInfo Step = iota
	StepGoals
	StepAudience
	StepReview
)

// Titles for the four stages, in order.
var stepTitles = []string{"Business Info", "Business Goals", "Target Audience", "Review & Generate"}

// String returns the stage title.
func (s Step) String() string {
	if s < StepBusinessInfo || int(s) >= len(stepTitles) {
		return "Unknown"
	}
	return stepTitles[s]
}

// Titles lists the stage titles for step indicators.
func Titles() []string {
	out := make([]string, len(stepTitles))
	copy(out, stepTitles)
	return out
}

// transitions is the explicit table of allowed forward moves. Advancing to
// any step not listed for the current one is rejected.
var transitions = map[Step][]Step{
	StepBusinessInfo: {StepGoals},
	StepGoals:        {StepAudience},
	StepAudience:     {StepReview},
	StepReview:       {},
}

// validators gate forward progression per step. A nil entry means the step
// never blocks.
var validators = map[Step]func(*campaign.Draft) map[string]string{
	StepBusinessInfo: validateBusinessInfo,
	StepGoals:        validateGoals,
}

func validateBusinessInfo(d *campaign.Draft) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(d.BusinessName) == "" {
		errs["businessName"] = "Business name is required"
	}
	if strings.TrimSpace(d.BusinessDescription) == "" {
		errs["businessDescription"] = "Business description is required"
	}
	return errs
}

func validateGoals(d *campaign.Draft) map[string]string {
	errs := map[string]string{}
	if len(d.BusinessGoals) == 0 {
		errs["businessGoals"] = "Select at least one goal"
	}
	return errs
}

// ErrSubmitInFlight rejects a submit while a previous one is still running.
var ErrSubmitInFlight = errors.New("submission already in flight")

// ErrNotAtReview rejects a submit from any step but the terminal one.
var ErrNotAtReview = errors.New("submit only allowed from the review step")

// Recommender is the slice of the planner client the wizard needs.
type Recommender interface {
	Recommend(ctx context.Context, draft campaign.Draft) (*campaign.Package, error)
}

// Wizard drives the four-stage intake for one session. The draft persists
// across reloads; step position and field errors are transient.
type Wizard struct {
	mu         sync.Mutex
	session    string
	db         *store.Database
	client     Recommender
	draft      campaign.Draft
	step       Step
	errors     map[string]string
	submitting bool
}

// New constructs the wizard for a session, restoring any persisted draft.
func New(session string, db *store.Database, client Recommender) *Wizard {
	w := &Wizard{
		session: session,
		db:      db,
		client:  client,
		errors:  map[string]string{},
	}
	if db.GetJSON(session, store.KeyCampaignDraft, &w.draft) {
		w.draft.DeriveIndustry()
	}
	return w
}

// Step reports the current stage.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Errors returns the field errors raised by the last rejected advance.
func (w *Wizard) Errors() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.errors))
	for k, v := range w.errors {
		out[k] = v
	}
	return out
}

// Draft returns a copy of the in-progress profile.
func (w *Wizard) Draft() campaign.Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot()
}

func (w *Wizard) snapshot() campaign.Draft {
	d := w.draft
	d.BusinessGoals = append([]string(nil), w.draft.BusinessGoals...)
	d.Demographics = append([]string(nil), w.draft.Demographics...)
	d.Interests = append([]string(nil), w.draft.Interests...)
	return d
}

// UpdateField sets one of the free-text draft fields and persists the draft.
func (w *Wizard) UpdateField(field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch field {
	case "businessName":
		w.draft.BusinessName = value
	case "businessDescription":
		w.draft.BusinessDescription = value
	case "location":
		w.draft.Location = value
	default:
		return campaign.NewValidationError("unknown field %q", field)
	}
	w.persistDraft()
	return nil
}

// ToggleSetMember adds or removes a value from one of the draft's sets.
// Toggling an interest recomputes the derived industry on the same call.
func (w *Wizard) ToggleSetMember(field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch field {
	case "businessGoals":
		w.draft.BusinessGoals = toggle(w.draft.BusinessGoals, value)
	case "demographics":
		w.draft.Demographics = toggle(w.draft.Demographics, value)
	case "interests":
		w.draft.Interests = toggle(w.draft.Interests, value)
		w.draft.DeriveIndustry()
	default:
		return campaign.NewValidationError("unknown set field %q", field)
	}
	w.persistDraft()
	return nil
}

func toggle(set []string, value string) []string {
	for i, existing := range set {
		if existing == value {
			return append(set[:i:i], set[i+1:]...)
		}
	}
	return append(set, value)
}

// Advance moves to the next step if the current step validates. On
// rejection the step is unchanged and field errors are populated.
func (w *Wizard) Advance() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if validate := validators[w.step]; validate != nil {
		if errs := validate(&w.draft); len(errs) > 0 {
			w.errors = errs
			return false
		}
	}
	next, ok := transitions[w.step]
	if !ok || len(next) == 0 {
		return false
	}
	w.errors = map[string]string{}
	w.step = next[0]
	return true
}

// Retreat moves back one step, stopping at the first.
func (w *Wizard) Retreat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepBusinessInfo {
		w.step--
	}
	w.errors = map[string]string{}
}

// Submit sends the full draft to the planner service and commits the
// returned package. The draft survives any failure so the user can retry;
// it is discarded only once a complete package has been committed.
func (w *Wizard) Submit(ctx context.Context) (*campaign.Package, error) {
	w.mu.Lock()
	if w.step != StepReview {
		w.mu.Unlock()
		return nil, ErrNotAtReview
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	w.submitting = true
	draft := w.snapshot()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}()

	pkg, err := w.client.Recommend(ctx, draft)
	if err != nil {
		return nil, err
	}

	if err := w.db.Set(w.session, store.KeyCampaignData, string(pkg.Raw)); err != nil {
		return nil, err
	}
	// A fresh package invalidates any answers or script generated against
	// the previous one.
	for _, key := range []string{store.KeyScriptQA, store.KeyScriptFlow, store.KeyGeneratedScript} {
		if err := w.db.Remove(w.session, key); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("clear stale flow state")
		}
	}

	w.mu.Lock()
	w.draft = campaign.Draft{}
	w.step = StepBusinessInfo
	w.errors = map[string]string{}
	w.mu.Unlock()
	if err := w.db.Remove(w.session, store.KeyCampaignDraft); err != nil {
		logrus.WithError(err).Warn("clear submitted draft")
	}

	return pkg, nil
}

func (w *Wizard) persistDraft() {
	if err := w.db.SetJSON(w.session, store.KeyCampaignDraft, w.draft); err != nil {
		logrus.WithError(err).WithField("session", w.session).Warn("persist draft")
	}
}
