package flow

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"campaign-planner/backend/internal/ai"
	"campaign-planner/backend/internal/campaign"
	"campaign-planner/backend/internal/store"
)

type fakePlanner struct {
	adTypes     map[string][]string
	questions   map[string][]ai.Question
	script      string
	scriptErr   error
	lastRequest ai.ScriptRequest

	// onAdTypes runs mid-fetch to simulate user input arriving while a
	// request is in flight.
	onAdTypes   func()
	onQuestions func()
}

func (f *fakePlanner) AdTypes(ctx context.Context, platform string, campaignData json.RawMessage) ([]string, error) {
	if f.onAdTypes != nil {
		cb := f.onAdTypes
		f.onAdTypes = nil
		cb()
	}
	return f.adTypes[platform], nil
}

func (f *fakePlanner) Questions(ctx context.Context, platform, adType string, campaignData json.RawMessage) ([]ai.Question, error) {
	if f.onQuestions != nil {
		cb := f.onQuestions
		f.onQuestions = nil
		cb()
	}
	return f.questions[platform+"/"+adType], nil
}

func (f *fakePlanner) GenerateScript(ctx context.Context, req ai.ScriptRequest) (string, error) {
	f.lastRequest = req
	if f.scriptErr != nil {
		return "", f.scriptErr
	}
	return f.script, nil
}

func openStore(t *testing.T) *store.Database {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"), true)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func instagramPlanner() *fakePlanner {
	return &fakePlanner{
		adTypes: map[string][]string{
			"Instagram": {"Image Ad", "Video Ad"},
			"LinkedIn":  {"Image Ad"},
		},
		questions: map[string][]ai.Question{
			"Instagram/Video Ad": {
				{Text: "What product is featured?"},
				{Text: "What should viewers do after seeing the ad?"},
			},
			"LinkedIn/Image Ad": {
				{Text: "What is the offer?"},
			},
		},
		script: "0-4 sec: Scene 1",
	}
}

func startFlow(t *testing.T, e *Engine) {
	t.Helper()
	if _, err := e.SelectPlatform(context.Background(), "Instagram"); err != nil {
		t.Fatalf("select platform: %v", err)
	}
	if _, err := e.SelectAdType(context.Background(), "Video Ad"); err != nil {
		t.Fatalf("select ad type: %v", err)
	}
}

func TestSelectionOrder(t *testing.T) {
	e := New("s1", openStore(t), instagramPlanner())
	if _, err := e.SelectAdType(context.Background(), "Video Ad"); !errors.Is(err, ErrNoPlatform) {
		t.Fatalf("expected ErrNoPlatform, got %v", err)
	}

	types, err := e.SelectPlatform(context.Background(), "Instagram")
	if err != nil {
		t.Fatalf("select platform: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("expected two ad types, got %v", types)
	}
}

func TestAnswerAndAdvance(t *testing.T) {
	db := openStore(t)
	e := New("s1", db, instagramPlanner())
	startFlow(t, e)

	if q := e.CurrentQuestion(); q == nil || q.Text != "What product is featured?" {
		t.Fatalf("unexpected current question: %+v", q)
	}

	// Advancing past an unanswered question is a no-op.
	if e.GoNext() {
		t.Fatal("goNext must be rejected without an answer")
	}
	if e.Index() != 0 {
		t.Fatalf("index must not move, got %d", e.Index())
	}

	var vErr *campaign.ValidationError
	if err := e.AnswerCurrent("   "); !errors.As(err, &vErr) {
		t.Fatalf("blank answer must be rejected, got %v", err)
	}

	if err := e.AnswerCurrent("Cold brew"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	// Each answer is persisted as it lands.
	answers := map[string]string{}
	if !db.GetJSON("s1", store.KeyScriptQA, &answers) {
		t.Fatal("answers not persisted")
	}
	if answers["What product is featured?"] != "Cold brew" {
		t.Fatalf("unexpected persisted answers: %v", answers)
	}

	if !e.GoNext() {
		t.Fatal("goNext after answering must advance")
	}
	if e.Index() != 1 {
		t.Fatalf("expected index 1, got %d", e.Index())
	}
	if e.IsComplete() {
		t.Fatal("flow must not be complete yet")
	}

	if err := e.AnswerCurrent("Visit our store"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if e.IsComplete() {
		t.Fatal("completion requires one more goNext")
	}
	if !e.GoNext() {
		t.Fatal("final goNext must flip completion")
	}
	if !e.IsComplete() {
		t.Fatal("flow must be complete")
	}
	if e.Index() != 1 {
		t.Fatalf("index must not run off the end, got %d", e.Index())
	}
	if e.CurrentQuestion() != nil {
		t.Fatal("no current question once complete")
	}
}

func TestPlatformSwitchClearsState(t *testing.T) {
	db := openStore(t)
	e := New("s1", db, instagramPlanner())
	startFlow(t, e)
	if err := e.AnswerCurrent("Cold brew"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	if _, err := e.SelectPlatform(context.Background(), "LinkedIn"); err != nil {
		t.Fatalf("switch platform: %v", err)
	}

	if e.AdType() != "" {
		t.Fatalf("ad type must reset, got %q", e.AdType())
	}
	if len(e.Schema()) != 0 {
		t.Fatalf("schema must reset, got %v", e.Schema())
	}
	if len(e.Answers()) != 0 {
		t.Fatalf("answers must reset, got %v", e.Answers())
	}
	if e.Index() != 0 {
		t.Fatalf("index must reset, got %d", e.Index())
	}
	if e.IsComplete() {
		t.Fatal("completion must reset")
	}
	if _, ok := db.Get("s1", store.KeyScriptQA); ok {
		t.Fatal("persisted answers from the previous flow must be removed")
	}
}

func TestStaleFetchDiscarded(t *testing.T) {
	planner := instagramPlanner()
	e := New("s1", openStore(t), planner)

	// The user switches away while the Instagram ad-type fetch is in flight.
	planner.onAdTypes = func() {
		planner.onAdTypes = nil
		if _, err := e.SelectPlatform(context.Background(), "LinkedIn"); err != nil {
			t.Fatalf("mid-flight switch: %v", err)
		}
	}

	_, err := e.SelectPlatform(context.Background(), "Instagram")
	if !errors.Is(err, ErrSelectionChanged) {
		t.Fatalf("expected ErrSelectionChanged, got %v", err)
	}
	if e.Platform() != "LinkedIn" {
		t.Fatalf("live selection must win, got %q", e.Platform())
	}
	types := e.AdTypes()
	if len(types) != 1 || types[0] != "Image Ad" {
		t.Fatalf("stale ad types must not be applied, got %v", types)
	}
}

func TestStaleSchemaDiscarded(t *testing.T) {
	planner := instagramPlanner()
	e := New("s1", openStore(t), planner)
	if _, err := e.SelectPlatform(context.Background(), "Instagram"); err != nil {
		t.Fatalf("select platform: %v", err)
	}

	planner.onQuestions = func() {
		if _, err := e.SelectAdType(context.Background(), "Image Ad"); err != nil {
			t.Fatalf("mid-flight ad type switch: %v", err)
		}
	}

	_, err := e.SelectAdType(context.Background(), "Video Ad")
	if !errors.Is(err, ErrSelectionChanged) {
		t.Fatalf("expected ErrSelectionChanged, got %v", err)
	}
	if e.AdType() != "Image Ad" {
		t.Fatalf("live ad type must win, got %q", e.AdType())
	}
}

func TestGenerateScript(t *testing.T) {
	db := openStore(t)
	_ = db.Set("s1", store.KeyCampaignData, `{"businessName":"Vega Digital"}`)
	planner := instagramPlanner()
	e := New("s1", db, planner)
	startFlow(t, e)

	if _, err := e.GenerateScript(context.Background()); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}

	_ = e.AnswerCurrent("Cold brew")
	e.GoNext()
	_ = e.AnswerCurrent("Visit our store")
	e.GoNext()

	script, err := e.GenerateScript(context.Background())
	if err != nil {
		t.Fatalf("generate script: %v", err)
	}
	if script != "0-4 sec: Scene 1" {
		t.Fatalf("unexpected script %q", script)
	}

	if planner.lastRequest.Platform != "Instagram" || planner.lastRequest.AdType != "Video Ad" {
		t.Fatalf("request context not assembled: %+v", planner.lastRequest)
	}
	if string(planner.lastRequest.CampaignData) != `{"businessName":"Vega Digital"}` {
		t.Fatalf("campaign context not forwarded: %s", planner.lastRequest.CampaignData)
	}
	if len(planner.lastRequest.Answers) != 2 {
		t.Fatalf("full answer set not forwarded: %v", planner.lastRequest.Answers)
	}

	stored, ok := db.Get("s1", store.KeyGeneratedScript)
	if !ok || stored != "0-4 sec: Scene 1" {
		t.Fatalf("script not persisted, got %q", stored)
	}
}

func TestResume(t *testing.T) {
	db := openStore(t)
	planner := instagramPlanner()

	first := New("s1", db, planner)
	startFlow(t, first)
	_ = first.AnswerCurrent("Cold brew")
	first.GoNext()

	// A fresh engine (reloaded page / restarted process) resumes at the
	// first unanswered question.
	second := New("s1", db, planner)
	if err := second.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if second.Platform() != "Instagram" || second.AdType() != "Video Ad" {
		t.Fatalf("selection not restored: %q/%q", second.Platform(), second.AdType())
	}
	if q := second.CurrentQuestion(); q == nil || q.Text != "What should viewers do after seeing the ad?" {
		t.Fatalf("expected to resume at the unanswered question, got %+v", q)
	}
	if second.Answers()["What product is featured?"] != "Cold brew" {
		t.Fatalf("answers not restored: %v", second.Answers())
	}
}

func TestResumeFullyAnswered(t *testing.T) {
	db := openStore(t)
	planner := instagramPlanner()

	first := New("s1", db, planner)
	startFlow(t, first)
	_ = first.AnswerCurrent("Cold brew")
	first.GoNext()
	_ = first.AnswerCurrent("Visit our store")
	first.GoNext()

	second := New("s1", db, planner)
	if err := second.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !second.IsComplete() {
		t.Fatal("fully answered flow must resume complete")
	}
}

func TestResumeWithoutPersistedFlow(t *testing.T) {
	e := New("s1", openStore(t), instagramPlanner())
	if err := e.Resume(context.Background()); err != nil {
		t.Fatalf("resume with nothing persisted must be a no-op: %v", err)
	}
	if e.Platform() != "" {
		t.Fatalf("unexpected platform %q", e.Platform())
	}
}
