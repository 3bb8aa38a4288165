package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewly/reviewly/internal/catalog"
	"github.com/reviewly/reviewly/internal/llm"
	"github.com/reviewly/reviewly/internal/log"
	"github.com/reviewly/reviewly/internal/report"
	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/session"
	"github.com/reviewly/reviewly/internal/user"
)

// Hand-written doubles for the dispatcher dependencies. Each records calls
// so tests can assert what was (not) touched.

type fakeSearcher struct {
	results    []search.Ranked
	reviews    []search.Review
	searchErr  error
	reviewsErr error

	searchCalls  []search.Query
	reviewsCalls []struct {
		Query     string
		ProductID int64
		TopK      int
	}
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) ([]search.Ranked, error) {
	f.searchCalls = append(f.searchCalls, q)
	return f.results, f.searchErr
}

func (f *fakeSearcher) ReviewsNearest(_ context.Context, queryText string, productID int64, topK int) ([]search.Review, error) {
	f.reviewsCalls = append(f.reviewsCalls, struct {
		Query     string
		ProductID int64
		TopK      int
	}{queryText, productID, topK})
	return f.reviews, f.reviewsErr
}

type fakeUsers struct {
	users []user.User
	err   error

	listCalls    int
	countFilters []user.Filter
	setRoleCalls int
	deleteCalls  int
}

func (f *fakeUsers) Users(context.Context, user.Filter) ([]user.User, error) {
	f.listCalls++
	return f.users, f.err
}

func (f *fakeUsers) Count(_ context.Context, filter user.Filter) (int64, error) {
	f.countFilters = append(f.countFilters, filter)
	return int64(len(f.users)), f.err
}

func (f *fakeUsers) User(_ context.Context, id int64) (user.User, error) {
	f.listCalls++
	if f.err != nil {
		return user.User{}, f.err
	}
	if len(f.users) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return f.users[0], nil
}

func (f *fakeUsers) SetRole(context.Context, int64, string) error {
	f.setRoleCalls++
	return f.err
}

func (f *fakeUsers) Delete(context.Context, int64) error {
	f.deleteCalls++
	return f.err
}

type fakeReporter struct {
	points []report.Point
	err    error
	calls  int
}

func (f *fakeReporter) Heatmap(context.Context) ([]report.Point, error) {
	f.calls++
	return f.points, f.err
}

type fakeHistory struct {
	saved []string
}

func (f *fakeHistory) Save(_ context.Context, _ int64, query string) error {
	f.saved = append(f.saved, query)
	return nil
}

type fixture struct {
	dispatcher *Dispatcher
	searcher   *fakeSearcher
	users      *fakeUsers
	reporter   *fakeReporter
	history    *fakeHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		searcher: &fakeSearcher{},
		users:    &fakeUsers{},
		reporter: &fakeReporter{},
		history:  &fakeHistory{},
	}
	var err error
	f.dispatcher, err = NewDispatcher(Config{
		Searcher: f.searcher,
		Users:    f.users,
		Reporter: f.reporter,
		History:  f.history,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)
	return f
}

func userSession() *session.Session {
	return session.New(1, false, llm.Message{Role: llm.RoleSystem, Content: "sys"})
}

func adminSession() *session.Session {
	return session.New(2, true, llm.Message{Role: llm.RoleSystem, Content: "sys"})
}

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: llm.FunctionCall{Name: name, Arguments: args},
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), userSession(), call("drop_tables", "{}"))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "UnknownTool")
}

func TestDispatch_PrivilegedDenial(t *testing.T) {
	f := newFixture(t)
	sess := userSession()

	for _, name := range []string{NameGetUsers, NameGetUser, NameSetUserRole, NameDeleteUser, NameHeatmapReport} {
		res, err := f.dispatcher.Dispatch(context.Background(), sess, call(name, `{"user_id":1,"role":"admin"}`))
		require.NoError(t, err)
		assert.Contains(t, res.ResponseText, "PermissionDenied", name)
	}

	// Denial happens before any handler runs: no store was touched.
	assert.Zero(t, f.users.listCalls)
	assert.Zero(t, f.users.setRoleCalls)
	assert.Zero(t, f.users.deleteCalls)
	assert.Zero(t, f.reporter.calls)
}

func TestDispatch_SearchProduct(t *testing.T) {
	f := newFixture(t)
	f.searcher.results = []search.Ranked{
		{Product: catalog.Product{ID: 12, Name: "Wireless Mouse", Category: "Electronics", Price: 29.99}, Total: 0.63},
		{Product: catalog.Product{ID: 30, Name: "Mouse Pad", Category: "Electronics", Price: 9.99}, Total: 0.33},
	}
	sess := userSession()

	res, err := f.dispatcher.Dispatch(context.Background(), sess,
		call(NameSearchProduct, `{"query":"wireless mouse","category":"Electronics","top_n":2}`))
	require.NoError(t, err)

	assert.Contains(t, res.ResponseText, "Wireless Mouse")
	assert.Contains(t, res.ResponseText, "Mouse Pad")

	cards, ok := res.AdditionalData["products"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, cards, 2)

	// The query reached the engine with its filters intact.
	require.Len(t, f.searcher.searchCalls, 1)
	q := f.searcher.searchCalls[0]
	assert.Equal(t, "wireless mouse", q.Text)
	assert.Equal(t, 2, q.TopN)
	require.NotNil(t, q.Category)
	assert.Equal(t, "Electronics", *q.Category)

	// The query was recorded and the top hit became the product in focus.
	assert.Equal(t, []string{"wireless mouse"}, f.history.saved)
	require.NotNil(t, sess.ActiveProduct())
	assert.Equal(t, int64(12), sess.ActiveProduct().ID)
}

func TestDispatch_SearchProduct_NoResults(t *testing.T) {
	f := newFixture(t)
	sess := userSession()

	res, err := f.dispatcher.Dispatch(context.Background(), sess,
		call(NameSearchProduct, `{"query":"zzzz"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "No products")
	assert.Nil(t, sess.ActiveProduct())
}

func TestDispatch_SearchProduct_InvalidArgs(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameSearchProduct, `{not json`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "InvalidArguments")

	res, err = f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameSearchProduct, `{}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "query is required")

	res, err = f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameSearchProduct, `{"query":"mouse","top_n":-1}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "top_n must be positive")
	assert.Empty(t, f.searcher.searchCalls)
}

func TestDispatch_SearchProduct_DefaultTopN(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameSearchProduct, `{"query":"mouse"}`))
	require.NoError(t, err)

	require.Len(t, f.searcher.searchCalls, 1)
	assert.Equal(t, search.DefaultTopN, f.searcher.searchCalls[0].TopN)
}

// Downstream failures come back to the model as tool payloads. A broken
// database must not terminate the conversation.
func TestDispatch_ExecutionErrorKeepsTurnAlive(t *testing.T) {
	f := newFixture(t)
	f.searcher.searchErr = errors.New("pool exhausted")
	f.searcher.reviewsErr = errors.New("pool exhausted")
	f.users.err = errors.New("pool exhausted")
	f.reporter.err = errors.New("pool exhausted")

	sess := adminSession()
	sess.SetActiveProduct(&catalog.Product{ID: 12, Name: "Wireless Mouse"})

	for _, c := range []llm.ToolCall{
		call(NameSearchProduct, `{"query":"mouse"}`),
		call(NameReviewsByEmbedding, `{"query_text":"battery"}`),
		call(NameGetUsers, `{}`),
		call(NameGetUser, `{"user_id":1}`),
		call(NameSetUserRole, `{"user_id":1,"role":"admin"}`),
		call(NameDeleteUser, `{"user_id":1}`),
		call(NameHeatmapReport, `{}`),
	} {
		res, err := f.dispatcher.Dispatch(context.Background(), sess, c)
		require.NoError(t, err, c.Function.Name)
		assert.Contains(t, res.ResponseText, "ToolExecutionError", c.Function.Name)
	}
}

func TestDispatch_Reviews_BoundProduct(t *testing.T) {
	f := newFixture(t)
	f.searcher.reviews = []search.Review{{ID: 1, ProductID: 12, Content: "great battery", Rating: 5}}
	sess := userSession()
	sess.SetActiveProduct(&catalog.Product{ID: 12, Name: "Wireless Mouse"})

	res, err := f.dispatcher.Dispatch(context.Background(), sess,
		call(NameReviewsByEmbedding, `{"query_text":"battery life"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "great battery")

	// The model gets the matched review ids alongside the text.
	assert.Equal(t, []int64{1}, res.AdditionalData["review_ids"])

	// Bound product wins, with the broader sample size.
	require.Len(t, f.searcher.reviewsCalls, 1)
	assert.Equal(t, int64(12), f.searcher.reviewsCalls[0].ProductID)
	assert.Equal(t, reviewsTopKBound, f.searcher.reviewsCalls[0].TopK)
	assert.Empty(t, f.searcher.searchCalls, "no product resolution needed")
}

func TestDispatch_Reviews_ResolveByName(t *testing.T) {
	f := newFixture(t)
	f.searcher.results = []search.Ranked{{Product: catalog.Product{ID: 44, Name: "Trail Shoes"}}}
	f.searcher.reviews = []search.Review{{ID: 2, ProductID: 44, Content: "very comfy", Rating: 4}}

	res, err := f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameReviewsByEmbedding, `{"query_text":"comfort","product_name_or_description":"trail shoes"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "very comfy")

	require.Len(t, f.searcher.searchCalls, 1)
	assert.Equal(t, "trail shoes", f.searcher.searchCalls[0].Text)
	assert.Equal(t, 1, f.searcher.searchCalls[0].TopN)

	require.Len(t, f.searcher.reviewsCalls, 1)
	assert.Equal(t, int64(44), f.searcher.reviewsCalls[0].ProductID)
	assert.Equal(t, reviewsTopKResolved, f.searcher.reviewsCalls[0].TopK)
}

func TestDispatch_Reviews_MissingSelector(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), userSession(),
		call(NameReviewsByEmbedding, `{"query_text":"battery"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "product_name_or_description")
}

func TestDispatch_SetUserRole(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), adminSession(),
		call(NameSetUserRole, `{"user_id":9,"role":"admin"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "role admin")
	assert.Equal(t, 1, f.users.setRoleCalls)
}

func TestDispatch_SetUserRole_InvalidRole(t *testing.T) {
	f := newFixture(t)

	res, err := f.dispatcher.Dispatch(context.Background(), adminSession(),
		call(NameSetUserRole, `{"user_id":9,"role":"root"}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "InvalidArguments")
	assert.Zero(t, f.users.setRoleCalls)
}

func TestDispatch_GetUsers(t *testing.T) {
	f := newFixture(t)
	github := "octocat"
	f.users.users = []user.User{
		{ID: 1, Email: "a@example.com", Role: user.RoleUser},
		{ID: 2, Email: "b@example.com", Role: user.RoleAdmin, GithubID: &github},
	}

	res, err := f.dispatcher.Dispatch(context.Background(), adminSession(),
		call(NameGetUsers, `{"email_starts_with":"a","limit":10}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "2 of 2 matching account(s)")
	assert.Contains(t, res.ResponseText, "a@example.com")
	assert.Contains(t, res.ResponseText, "octocat")

	// The total is counted over the full match set, not the limited page.
	require.Len(t, f.users.countFilters, 1)
	assert.Equal(t, "a", f.users.countFilters[0].EmailStarts)
	assert.Zero(t, f.users.countFilters[0].Limit)
}

func TestDispatch_Heatmap(t *testing.T) {
	f := newFixture(t)
	f.reporter.points = []report.Point{{Lat: 51.51, Lng: -0.13, Weight: 3}}

	res, err := f.dispatcher.Dispatch(context.Background(), adminSession(),
		call(NameHeatmapReport, `{}`))
	require.NoError(t, err)
	assert.Contains(t, res.ResponseText, "1 location")
	assert.Equal(t, f.reporter.points, res.AdditionalData["heatmap"])
}
