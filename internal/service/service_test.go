package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pooly/backend/internal/client"
	"github.com/pooly/backend/internal/dto"
	"github.com/pooly/backend/internal/repository"
	"github.com/pooly/backend/internal/testutil"
)

type testEnv struct {
	repositories repository.Repositories
	services     Services
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	repositories := repository.NewRepositories(testutil.NewTestDB(t))
	pubSub := client.NewMemoryPubSub()
	t.Cleanup(func() { pubSub.Close() })
	clients := client.NewClientsWith(client.NewJWTAuthClient([]byte("test-secret"), time.Hour), pubSub)
	return testEnv{
		repositories: repositories,
		services:     NewServices(repositories, clients),
	}
}

func (env testEnv) createEvent(t *testing.T, name string) (dto.EventView, dto.Identity) {
	t.Helper()
	event, credential, err := env.services.Event().Create(context.Background(), name)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return event, credential.Identity
}

func (env testEnv) join(t *testing.T, code string) dto.Identity {
	t.Helper()
	_, credential, err := env.services.Event().Join(context.Background(), code)
	if err != nil {
		t.Fatalf("join event: %v", err)
	}
	return credential.Identity
}

func (env testEnv) count(t *testing.T, questionID uuid.UUID) int64 {
	t.Helper()
	count, err := env.services.Upvote().Count(context.Background(), questionID)
	if err != nil {
		t.Fatalf("count upvotes: %v", err)
	}
	return count
}

// scenario builds the event from the lunch scenario: alice asks, alice and bob upvote.
func (env testEnv) scenario(t *testing.T) (alice, bob dto.Identity, question dto.QuestionView) {
	t.Helper()
	ctx := context.Background()

	event, _ := env.createEvent(t, "Conf")
	alice = env.join(t, event.Code)
	bob = env.join(t, event.Code)

	question, err := env.services.Question().Create(ctx, alice, "What time is lunch?", "alice")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if got := env.count(t, question.ID); got != 0 {
		t.Fatalf("initial count = %d, want 0", got)
	}

	if count, err := env.services.Upvote().Cast(ctx, alice, question.ID); err != nil || count != 1 {
		t.Fatalf("alice Cast = %d, %v; want 1, nil", count, err)
	}
	if _, err := env.services.Upvote().Cast(ctx, alice, question.ID); !errors.Is(err, dto.ErrAlreadyUpvoted) {
		t.Fatalf("alice second Cast = %v, want ErrAlreadyUpvoted", err)
	}
	if got := env.count(t, question.ID); got != 1 {
		t.Fatalf("count after repeated cast = %d, want 1", got)
	}
	if count, err := env.services.Upvote().Cast(ctx, bob, question.ID); err != nil || count != 2 {
		t.Fatalf("bob Cast = %d, %v; want 2, nil", count, err)
	}

	return alice, bob, question
}

func TestLunchScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, question := env.scenario(t)

	t.Run("non-owner cannot delete", func(t *testing.T) {
		err := env.services.Question().Delete(ctx, bob, question.ID)
		if !errors.Is(err, dto.ErrForbidden) {
			t.Fatalf("Delete by bob = %v, want ErrForbidden", err)
		}
		if got := env.count(t, question.ID); got != 2 {
			t.Errorf("count after rejected delete = %d, want 2", got)
		}
		if _, err := env.repositories.Question().GetByID(ctx, question.ID); err != nil {
			t.Errorf("question gone after rejected delete: %v", err)
		}
	})

	t.Run("owner delete cascades", func(t *testing.T) {
		if err := env.services.Question().Delete(ctx, alice, question.ID); err != nil {
			t.Fatalf("Delete by alice: %v", err)
		}
		if got := env.count(t, question.ID); got != 0 {
			t.Errorf("count after delete = %d, want 0", got)
		}
		questions, err := env.services.Question().List(ctx, alice)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, q := range questions {
			if q.ID == question.ID {
				t.Error("deleted question still listed")
			}
		}
	})
}

func TestRevokeRestoresCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)
	question, err := env.services.Question().Create(ctx, alice, "Why?", "")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	if _, err := env.services.Upvote().Revoke(ctx, alice, question.ID); !errors.Is(err, dto.ErrNotUpvoted) {
		t.Errorf("Revoke without cast = %v, want ErrNotUpvoted", err)
	}

	if _, err := env.services.Upvote().Cast(ctx, alice, question.ID); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	count, err := env.services.Upvote().Revoke(ctx, alice, question.ID)
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if count != 0 {
		t.Errorf("count after revoke = %d, want 0", count)
	}
	upvoted, err := env.services.Upvote().HasUpvoted(ctx, question.ID, alice.ParticipantID)
	if err != nil {
		t.Fatalf("HasUpvoted: %v", err)
	}
	if upvoted {
		t.Error("HasUpvoted after revoke = true")
	}
}

func TestConcurrentCastSameParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)
	question, err := env.services.Question().Create(ctx, alice, "Race?", "alice")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.services.Upvote().Cast(ctx, alice, question.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, dto.ErrAlreadyUpvoted):
		default:
			t.Errorf("Cast = %v, want nil or ErrAlreadyUpvoted", err)
		}
	}
	if successes != 1 {
		t.Errorf("successful casts = %d, want 1", successes)
	}
	if got := env.count(t, question.ID); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestQuestionsOfOtherEventsAreHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _, question := env.scenario(t)

	other, _ := env.createEvent(t, "Other")
	mallory := env.join(t, other.Code)

	if _, err := env.services.Upvote().Cast(ctx, mallory, question.ID); !errors.Is(err, dto.ErrNotFound) {
		t.Errorf("Cast from other event = %v, want ErrNotFound", err)
	}
	if _, err := env.services.Upvote().Revoke(ctx, mallory, question.ID); !errors.Is(err, dto.ErrNotFound) {
		t.Errorf("Revoke from other event = %v, want ErrNotFound", err)
	}
	if err := env.services.Question().Delete(ctx, mallory, question.ID); !errors.Is(err, dto.ErrNotFound) {
		t.Errorf("Delete from other event = %v, want ErrNotFound", err)
	}
	if _, err := env.services.Event().Get(ctx, mallory, alice.EventCode); !errors.Is(err, dto.ErrForbidden) {
		t.Errorf("Get other event = %v, want ErrForbidden", err)
	}

	questions, err := env.services.Question().List(ctx, mallory)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(questions) != 0 {
		t.Errorf("List for other event returned %d questions", len(questions))
	}
}

func TestAdminCannotDeleteOthersQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event, admin := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)

	if !admin.IsAdmin || alice.IsAdmin {
		t.Fatalf("admin flags: creator %v, participant %v", admin.IsAdmin, alice.IsAdmin)
	}

	question, err := env.services.Question().Create(ctx, alice, "Mine", "alice")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if err := env.services.Question().Delete(ctx, admin, question.ID); !errors.Is(err, dto.ErrForbidden) {
		t.Errorf("Delete by admin = %v, want ErrForbidden", err)
	}
}

func TestGetEventViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, question := env.scenario(t)
	carol := env.join(t, alice.EventCode)

	second, err := env.services.Question().Create(ctx, bob, "Second", "bob")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	event, err := env.services.Event().Get(ctx, carol, alice.EventCode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if event.Name != "Conf" || len(event.Questions) != 2 {
		t.Fatalf("Get = %+v", event)
	}
	first := event.Questions[0]
	if first.ID != question.ID || first.Upvotes != 2 || first.Upvoted || !first.CanUpvote || first.Owner {
		t.Errorf("first question as carol = %+v", first)
	}

	event, err = env.services.Event().Get(ctx, bob, alice.EventCode)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first, last := event.Questions[0], event.Questions[1]
	if !first.Upvoted || first.CanUpvote || first.Owner {
		t.Errorf("first question as bob = %+v", first)
	}
	if last.ID != second.ID || !last.Owner || last.Upvotes != 0 {
		t.Errorf("second question as bob = %+v", last)
	}
}

func TestCreateQuestionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)

	question, err := env.services.Question().Create(ctx, alice, "  <b>Fish</b> &amp; chips?<script>x</script> ", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if question.Content != "Fish & chips?" {
		t.Errorf("Content = %q", question.Content)
	}
	if question.Username != "Anonymous" {
		t.Errorf("Username = %q, want Anonymous", question.Username)
	}
	if !question.Owner || question.Upvotes != 0 || !question.CanUpvote {
		t.Errorf("Create view = %+v", question)
	}

	cases := map[string]struct{ content, username string }{
		"empty content":     {"", "alice"},
		"markup only":       {"<img src=x>", "alice"},
		"content too long":  {strings.Repeat("a", 256), "alice"},
		"username too long": {"ok", strings.Repeat("b", 21)},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.services.Question().Create(ctx, alice, tc.content, tc.username)
			if !errors.Is(err, dto.ErrInvalidInput) {
				t.Errorf("Create = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateEventRetriesTakenCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	events := env.services.Event().(*eventService)

	codes := []string{"111111", "111111", "222222"}
	events.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first, _, err := events.Create(ctx, "First")
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, _, err := events.Create(ctx, "Second")
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}
	if first.Code != "111111" || second.Code != "222222" {
		t.Errorf("codes = %s, %s", first.Code, second.Code)
	}

	events.newCode = func() (string, error) { return "111111", nil }
	if _, _, err := events.Create(ctx, "Third"); !errors.Is(err, dto.ErrConflict) {
		t.Errorf("Create with exhausted codes = %v, want ErrConflict", err)
	}

	list, err := events.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List returned %d events, want 2", len(list))
	}
}

func TestGenerateEventCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateEventCode()
		if err != nil {
			t.Fatalf("generateEventCode: %v", err)
		}
		if len(code) != 6 || strings.Trim(code, "0123456789") != "" {
			t.Fatalf("generateEventCode = %q", code)
		}
	}
}

func TestJoinUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.services.Event().Join(context.Background(), "000000"); !errors.Is(err, dto.ErrNotFound) {
		t.Errorf("Join = %v, want ErrNotFound", err)
	}
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	_, admin := env.createEvent(t, "Conf")

	credential, err := env.services.Auth().Issue(admin.EventCode, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	identity, err := env.services.Auth().Authenticate(credential.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity != credential.Identity {
		t.Errorf("Authenticate = %+v, want %+v", identity, credential.Identity)
	}

	for _, token := range []string{"", "garbage", credential.Token + "x"} {
		if _, err := env.services.Auth().Authenticate(token); !errors.Is(err, dto.ErrUnauthenticated) {
			t.Errorf("Authenticate(%q) = %v, want ErrUnauthenticated", token, err)
		}
	}
}

func TestWatchDeliversOnlyOwnEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventA, _ := env.createEvent(t, "A")
	eventB, _ := env.createEvent(t, "B")
	watcherA := env.join(t, eventA.Code)
	watcherB := env.join(t, eventB.Code)

	updatesA, err := env.services.Broker().Watch(ctx, watcherA)
	if err != nil {
		t.Fatalf("Watch A: %v", err)
	}
	updatesB, err := env.services.Broker().Watch(ctx, watcherB)
	if err != nil {
		t.Fatalf("Watch B: %v", err)
	}

	const perEvent = 10
	var wg sync.WaitGroup
	for _, code := range []string{eventA.Code, eventB.Code} {
		for _, topic := range dto.AllTopics {
			wg.Add(1)
			go func(code string, topic dto.Topic) {
				defer wg.Done()
				for i := 0; i < perEvent; i++ {
					id := uuid.New()
					count := int64(i)
					env.services.Broker().Publish(context.Background(), dto.LiveUpdate{
						Topic:      topic,
						EventCode:  code,
						QuestionID: &id,
						Upvotes:    &count,
						Question:   &dto.QuestionView{ID: id, EventCode: code},
					})
				}
			}(code, topic)
		}
	}
	wg.Wait()

	want := perEvent * len(dto.AllTopics)
	for name, tc := range map[string]struct {
		updates <-chan dto.LiveUpdate
		code    string
	}{
		"A": {updatesA, eventA.Code},
		"B": {updatesB, eventB.Code},
	} {
		for i := 0; i < want; i++ {
			select {
			case update := <-tc.updates:
				if update.EventCode != tc.code {
					t.Fatalf("watcher %s received update for event %s", name, update.EventCode)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("watcher %s received %d of %d updates", name, i, want)
			}
		}
		select {
		case update := <-tc.updates:
			t.Errorf("watcher %s received extra update %+v", name, update)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestWatchFollowsMutations(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)

	updates, err := env.services.Broker().Watch(ctx, alice)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	question, err := env.services.Question().Create(ctx, alice, "Live?", "alice")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	update := nextUpdate(t, updates)
	if update.Topic != dto.TopicNewQuestion || update.Question == nil || update.Question.ID != question.ID {
		t.Fatalf("first update = %+v", update)
	}
	if update.Question.Owner || update.Question.Upvoted {
		t.Errorf("broadcast question carries viewer flags: %+v", update.Question)
	}

	if _, err := env.services.Upvote().Cast(ctx, alice, question.ID); err != nil {
		t.Fatalf("Cast: %v", err)
	}
	update = nextUpdate(t, updates)
	if update.Topic != dto.TopicUpvoteCountChanged || update.Upvotes == nil || *update.Upvotes != 1 {
		t.Fatalf("second update = %+v", update)
	}

	if err := env.services.Question().Delete(ctx, alice, question.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	update = nextUpdate(t, updates)
	if update.Topic != dto.TopicQuestionDeleted || update.QuestionID == nil || *update.QuestionID != question.ID {
		t.Fatalf("third update = %+v", update)
	}
}

func TestWatchSelectedTopics(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)

	if _, err := env.services.Broker().Watch(ctx, alice, "bogus"); !errors.Is(err, dto.ErrInvalidInput) {
		t.Errorf("Watch(bogus) = %v, want ErrInvalidInput", err)
	}

	updates, err := env.services.Broker().Watch(ctx, alice, dto.TopicQuestionDeleted)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	question, err := env.services.Question().Create(ctx, alice, "Quiet", "alice")
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if err := env.services.Question().Delete(ctx, alice, question.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if update := nextUpdate(t, updates); update.Topic != dto.TopicQuestionDeleted {
		t.Errorf("update topic = %s, want %s", update.Topic, dto.TopicQuestionDeleted)
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Error("update delivered after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Error("updates channel not closed after cancel")
	}
}

func TestAcceptsRequiresEventScope(t *testing.T) {
	identity := dto.Identity{EventCode: "123456", ParticipantID: uuid.New()}
	cases := []struct {
		update dto.LiveUpdate
		want   bool
	}{
		{dto.LiveUpdate{Topic: dto.TopicNewQuestion, EventCode: "123456"}, true},
		{dto.LiveUpdate{Topic: dto.TopicNewQuestion, EventCode: "654321"}, false},
		{dto.LiveUpdate{Topic: dto.TopicNewQuestion}, false},
		{dto.LiveUpdate{Topic: dto.TopicQuestionDeleted, EventCode: "123456"}, false},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := accepts(identity, dto.TopicNewQuestion, tc.update); got != tc.want {
				t.Errorf("accepts(%+v) = %v, want %v", tc.update, got, tc.want)
			}
		})
	}
	if accepts(dto.Identity{}, dto.TopicNewQuestion, dto.LiveUpdate{Topic: dto.TopicNewQuestion}) {
		t.Error("unscoped watcher accepted unscoped update")
	}
}

func TestLoadersBatchFreshReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob, question := env.scenario(t)

	loaders := NewLoaders(env.repositories.Upvote(), bob.ParticipantID)
	unknown := uuid.New()
	countThunks := []func() (int64, error){
		loaders.UpvoteCount.Load(ctx, question.ID),
		loaders.UpvoteCount.Load(ctx, unknown),
	}
	upvotedThunk := loaders.Upvoted.Load(ctx, question.ID)

	for i, want := range []int64{2, 0} {
		got, err := countThunks[i]()
		if err != nil {
			t.Fatalf("count thunk %d: %v", i, err)
		}
		if got != want {
			t.Errorf("count %d = %d, want %d", i, got, want)
		}
	}
	if upvoted, err := upvotedThunk(); err != nil || !upvoted {
		t.Errorf("upvoted = %v, %v; want true, nil", upvoted, err)
	}

	// same loaders, changed ledger: no stale value
	if _, err := env.services.Upvote().Revoke(ctx, alice, question.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	got, err := loaders.UpvoteCount.Load(ctx, question.ID)()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != 1 {
		t.Errorf("count after revoke = %d, want 1", got)
	}
}

func nextUpdate(t *testing.T, updates <-chan dto.LiveUpdate) dto.LiveUpdate {
	t.Helper()
	select {
	case update, ok := <-updates:
		if !ok {
			t.Fatal("updates channel closed")
		}
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return dto.LiveUpdate{}
}

func TestWatchRepeatedTopicDeliversOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	event, _ := env.createEvent(t, "Conf")
	alice := env.join(t, event.Code)

	updates, err := env.services.Broker().Watch(ctx, alice, dto.TopicNewQuestion, dto.TopicNewQuestion)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if _, err := env.services.Question().Create(ctx, alice, "Once?", "alice"); err != nil {
		t.Fatalf("create question: %v", err)
	}
	if update := nextUpdate(t, updates); update.Topic != dto.TopicNewQuestion {
		t.Fatalf("update topic = %s, want %s", update.Topic, dto.TopicNewQuestion)
	}
	select {
	case update := <-updates:
		t.Errorf("update delivered twice: %+v", update)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSanitizeTextStripsEncodedMarkup(t *testing.T) {
	policy := bluemonday.StrictPolicy()
	cases := map[string]string{
		"<b>bold</b>":             "bold",
		"&lt;b&gt;bold&lt;/b&gt;": "bold",
		"&amp;lt;i&amp;gt;x":      "x",
		"Fish &amp; chips":        "Fish & chips",
		"a < b":                   "a < b",
		"  plain  ":               "plain",
	}
	for in, want := range cases {
		if got := sanitizeText(policy, in); got != want {
			t.Errorf("sanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}
