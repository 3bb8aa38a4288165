package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reviewly/reviewly/internal/llm"
	"github.com/reviewly/reviewly/internal/report"
	"github.com/reviewly/reviewly/internal/search"
	"github.com/reviewly/reviewly/internal/session"
	"github.com/reviewly/reviewly/internal/user"
)

// Review lookup depth: a bound product gets a broader sample than one the
// model just resolved by name.
const (
	reviewsTopKBound    = 3
	reviewsTopKResolved = 1
)

// Searcher runs product and review searches.
type Searcher interface {
	Search(ctx context.Context, q search.Query) ([]search.Ranked, error)
	ReviewsNearest(ctx context.Context, queryText string, productID int64, topK int) ([]search.Review, error)
}

// Users administers accounts.
type Users interface {
	Users(ctx context.Context, f user.Filter) ([]user.User, error)
	User(ctx context.Context, id int64) (user.User, error)
	Count(ctx context.Context, f user.Filter) (int64, error)
	SetRole(ctx context.Context, id int64, role string) error
	Delete(ctx context.Context, id int64) error
}

// Reporter builds admin reports.
type Reporter interface {
	Heatmap(ctx context.Context) ([]report.Point, error)
}

// History records search queries.
type History interface {
	Save(ctx context.Context, userID int64, query string) error
}

// Dispatcher routes assembled tool calls to their handlers.
// Dispatcher is stateless and safe for concurrent use.
type Dispatcher struct {
	searcher Searcher
	users    Users
	reporter Reporter
	history  History
	logger   *slog.Logger
}

// Config contains the dependencies for Dispatcher.
type Config struct {
	Searcher Searcher
	Users    Users
	Reporter Reporter
	History  History
	Logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("users is required")
	}
	if cfg.Reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		searcher: cfg.Searcher,
		users:    cfg.Users,
		reporter: cfg.Reporter,
		history:  cfg.History,
		logger:   logger,
	}, nil
}

// Dispatch executes one tool call for the session. Argument and permission
// problems, and downstream failures alike, come back as error Results so the
// model can read them and adjust; a failing store never aborts the turn. The
// error return is reserved for bugs in the dispatch table itself.
//
// An unprivileged session calling a privileged tool is denied before any
// handler runs, so no store is touched.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, call llm.ToolCall) (Result, error) {
	kind, err := ParseKind(call.Function.Name)
	if err != nil {
		d.logger.Warn("model called unknown tool", "name", call.Function.Name)
		return errorResult("UnknownTool", fmt.Sprintf("no tool named %q", call.Function.Name)), nil
	}

	if kind.Privileged() && !sess.Privileged {
		d.logger.Warn("unprivileged call to admin tool",
			"tool", kind.String(),
			"user_id", sess.UserID)
		return errorResult("PermissionDenied",
			fmt.Sprintf("%s requires administrator privileges", kind)), nil
	}

	d.logger.Debug("dispatching tool call",
		"tool", kind.String(),
		"user_id", sess.UserID,
		"call_id", call.ID)

	switch kind {
	case KindSearchProduct:
		return d.searchProduct(ctx, sess, call.Function.Arguments)
	case KindReviewsByEmbedding:
		return d.reviewsByEmbedding(ctx, sess, call.Function.Arguments)
	case KindGetUsers:
		return d.getUsers(ctx, call.Function.Arguments)
	case KindGetUser:
		return d.getUser(ctx, call.Function.Arguments)
	case KindSetUserRole:
		return d.setUserRole(ctx, call.Function.Arguments)
	case KindDeleteUser:
		return d.deleteUser(ctx, call.Function.Arguments)
	case KindHeatmapReport:
		return d.heatmapReport(ctx)
	default:
		return Result{}, fmt.Errorf("%w: kind %d unhandled", ErrUnknownTool, kind)
	}
}

// execError turns an infrastructure failure into a structured result. The
// model sees the failure as a tool payload and the conversation continues.
func (d *Dispatcher) execError(op string, err error) Result {
	d.logger.Error("tool execution failed", "op", op, "error", err)
	return errorResult("ToolExecutionError", fmt.Sprintf("%s: %v", op, err))
}

type searchProductArgs struct {
	Query    string   `json:"query"`
	Category *string  `json:"category"`
	MinPrice *float64 `json:"min_price"`
	MaxPrice *float64 `json:"max_price"`
	TopN     int      `json:"top_n"`
}

func (d *Dispatcher) searchProduct(ctx context.Context, sess *session.Session, rawArgs string) (Result, error) {
	var args searchProductArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorResult("InvalidArguments", err.Error()), nil
	}
	if args.Query == "" {
		return errorResult("InvalidArguments", "query is required"), nil
	}
	if args.TopN < 0 {
		return errorResult("InvalidArguments", "top_n must be positive"), nil
	}
	if args.TopN == 0 {
		args.TopN = search.DefaultTopN
	}

	results, err := d.searcher.Search(ctx, search.Query{
		Text:     args.Query,
		TopN:     args.TopN,
		Category: args.Category,
		MinPrice: args.MinPrice,
		MaxPrice: args.MaxPrice,
	})
	if err != nil {
		return d.execError("searching products", err), nil
	}

	// History is best-effort; a failed write must not break the turn.
	if err := d.history.Save(ctx, sess.UserID, args.Query); err != nil {
		d.logger.Warn("failed to save query history", "user_id", sess.UserID, "error", err)
	}

	if len(results) == 0 {
		return Result{ResponseText: "No products matched the query."}, nil
	}

	// The top hit becomes the session's product in focus, so follow-up
	// review questions target it without another lookup.
	top := results[0].Product
	sess.SetActiveProduct(&top)

	// The model-facing text stays free of internal ids; clients read those
	// from the additional data payload.
	var sb strings.Builder
	cards := make([]map[string]any, 0, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%s, $%.2f)\n",
			i+1, r.Product.Name, r.Product.Category, r.Product.Price)
		cards = append(cards, map[string]any{
			"id":       r.Product.ID,
			"name":     r.Product.Name,
			"category": r.Product.Category,
			"price":    r.Product.Price,
			"score":    r.Total,
		})
	}

	return Result{
		ResponseText:   strings.TrimRight(sb.String(), "\n"),
		AdditionalData: map[string]any{"products": cards},
	}, nil
}

type reviewsArgs struct {
	QueryText                string `json:"query_text"`
	ProductNameOrDescription string `json:"product_name_or_description"`
	ProductID                int64  `json:"product_id"`
}

func (d *Dispatcher) reviewsByEmbedding(ctx context.Context, sess *session.Session, rawArgs string) (Result, error) {
	var args reviewsArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorResult("InvalidArguments", err.Error()), nil
	}
	if args.QueryText == "" {
		return errorResult("InvalidArguments", "query_text is required"), nil
	}

	// A bound product takes precedence over anything in the arguments.
	productID := args.ProductID
	topK := reviewsTopKResolved
	if active := sess.ActiveProduct(); active != nil {
		productID = active.ID
		topK = reviewsTopKBound
	} else if productID == 0 {
		if args.ProductNameOrDescription == "" {
			return errorResult("InvalidArguments",
				"product_name_or_description is required when no product is selected"), nil
		}
		resolved, err := d.searcher.Search(ctx, search.Query{
			Text: args.ProductNameOrDescription,
			TopN: 1,
		})
		if err != nil {
			return d.execError("resolving product", err), nil
		}
		if len(resolved) == 0 {
			return Result{ResponseText: "No product matched that name or description."}, nil
		}
		productID = resolved[0].Product.ID
	}

	reviews, err := d.searcher.ReviewsNearest(ctx, args.QueryText, productID, topK)
	if err != nil {
		return d.execError("searching reviews", err), nil
	}
	if len(reviews) == 0 {
		return Result{ResponseText: "No reviews found for this product."}, nil
	}

	var sb strings.Builder
	reviewIDs := make([]int64, 0, len(reviews))
	for _, r := range reviews {
		fmt.Fprintf(&sb, "- (%d/5) %s\n", r.Rating, r.Content)
		reviewIDs = append(reviewIDs, r.ID)
	}

	return Result{
		ResponseText:   strings.TrimRight(sb.String(), "\n"),
		AdditionalData: map[string]any{"review_ids": reviewIDs},
	}, nil
}

type getUsersArgs struct {
	Email           string `json:"email"`
	EmailStartsWith string `json:"email_starts_with"`
	Role            string `json:"role"`
	GithubID        string `json:"github_id"`
	HasGithubID     *bool  `json:"has_github_id"`
	Limit           int    `json:"limit"`
}

func (d *Dispatcher) getUsers(ctx context.Context, rawArgs string) (Result, error) {
	var args getUsersArgs
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return errorResult("InvalidArguments", err.Error()), nil
		}
	}
	if args.Role != "" && !user.ValidRole(args.Role) {
		return errorResult("InvalidArguments",
			fmt.Sprintf("role must be one of: user, admin; got %q", args.Role)), nil
	}

	filter := user.Filter{
		Email:       args.Email,
		EmailStarts: args.EmailStartsWith,
		Role:        args.Role,
		GithubID:    args.GithubID,
		HasGithubID: args.HasGithubID,
	}

	total, err := d.users.Count(ctx, filter)
	if err != nil {
		return d.execError("counting users", err), nil
	}

	filter.Limit = args.Limit
	users, err := d.users.Users(ctx, filter)
	if err != nil {
		return d.execError("listing users", err), nil
	}
	if len(users) == 0 {
		return Result{ResponseText: "No users matched the filter."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d of %d matching account(s):\n", len(users), total)
	for _, u := range users {
		sb.WriteString(formatUser(u))
		sb.WriteByte('\n')
	}
	return Result{ResponseText: strings.TrimRight(sb.String(), "\n")}, nil
}

type userIDArgs struct {
	UserID int64 `json:"user_id"`
}

func (d *Dispatcher) getUser(ctx context.Context, rawArgs string) (Result, error) {
	var args userIDArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorResult("InvalidArguments", err.Error()), nil
	}

	u, err := d.users.User(ctx, args.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return errorResult("NotFound", fmt.Sprintf("no user with id %d", args.UserID)), nil
	}
	if err != nil {
		return d.execError("fetching user", err), nil
	}
	return Result{ResponseText: formatUser(u)}, nil
}

type setUserRoleArgs struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (d *Dispatcher) setUserRole(ctx context.Context, rawArgs string) (Result, error) {
	var args setUserRoleArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorResult("InvalidArguments", err.Error()), nil
	}
	if !user.ValidRole(args.Role) {
		return errorResult("InvalidArguments",
			fmt.Sprintf("role must be one of: user, admin; got %q", args.Role)), nil
	}

	err := d.users.SetRole(ctx, args.UserID, args.Role)
	if errors.Is(err, user.ErrNotFound) {
		return errorResult("NotFound", fmt.Sprintf("no user with id %d", args.UserID)), nil
	}
	if err != nil {
		return d.execError("setting role", err), nil
	}
	return Result{ResponseText: fmt.Sprintf("User %d now has role %s.", args.UserID, args.Role)}, nil
}

func (d *Dispatcher) deleteUser(ctx context.Context, rawArgs string) (Result, error) {
	var args userIDArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return errorResult("InvalidArguments", err.Error()), nil
	}

	err := d.users.Delete(ctx, args.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return errorResult("NotFound", fmt.Sprintf("no user with id %d", args.UserID)), nil
	}
	if err != nil {
		return d.execError("deleting user", err), nil
	}
	return Result{ResponseText: fmt.Sprintf("User %d deleted.", args.UserID)}, nil
}

func (d *Dispatcher) heatmapReport(ctx context.Context) (Result, error) {
	points, err := d.reporter.Heatmap(ctx)
	if err != nil {
		return d.execError("building heatmap", err), nil
	}

	return Result{
		ResponseText:   fmt.Sprintf("Login heatmap built with %d location buckets.", len(points)),
		AdditionalData: map[string]any{"heatmap": points},
	}, nil
}

func formatUser(u user.User) string {
	github := "-"
	if u.GithubID != nil {
		github = *u.GithubID
	}
	return fmt.Sprintf("id %d | %s | role %s | github %s", u.ID, u.Email, u.Role, github)
}
