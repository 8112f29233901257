// Package admin manages the user table of the admin dashboard.
package admin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finease/internal/core"
	"finease/internal/listview"
	"finease/internal/log"
)

// Sort keys.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortNameAsc   = "nameAsc"
	SortNameDesc  = "nameDesc"
	SortEmailAsc  = "emailAsc"
	SortEmailDesc = "emailDesc"
	SortRoleAsc   = "roleAsc"
	SortRoleDesc  = "roleDesc"
)

var PageSizes = []int{8, 12, 16}

const DefaultPageSize = 8

var (
	ErrActionFailed = errors.New("action failed")
	ErrNotConfirmed = errors.New("deletion not confirmed")
	ErrSelfDelete   = errors.New("cannot delete your own account")
	ErrNotFound     = errors.New("user not found")
)

type Backend interface {
	Users(ctx context.Context) ([]core.User, error)
	UserAnalytics(ctx context.Context) ([]core.MonthlyCount, error)
	SetUserRole(ctx context.Context, id string, role core.Role) error
	DeleteUser(ctx context.Context, id string) error
}

type Publisher interface {
	PublishActivity(ctx context.Context, a core.Activity) error
}

func haystack(u core.User) string {
	return strings.Join([]string{u.Name, u.Email, string(u.Role)}, " ")
}

func byCreated(a, b core.User) int { return cmp.Compare(a.Created(), b.Created()) }
func byName(a, b core.User) int    { return listview.CompareText(a.Name, b.Name) }
func byEmail(a, b core.User) int   { return listview.CompareText(a.Email, b.Email) }
func byRole(a, b core.User) int    { return listview.CompareText(string(a.Role), string(b.Role)) }

func Schema() listview.Schema[core.User] {
	return listview.Schema[core.User]{
		Haystack: haystack,
		Sorts: map[string]func(a, b core.User) int{
			SortNewest:    listview.Reverse(byCreated),
			SortOldest:    byCreated,
			SortNameAsc:   byName,
			SortNameDesc:  listview.Reverse(byName),
			SortEmailAsc:  byEmail,
			SortEmailDesc: listview.Reverse(byEmail),
			SortRoleAsc:   byRole,
			SortRoleDesc:  listview.Reverse(byRole),
		},
		DefaultSort: SortNewest,
		PageSizes:   PageSizes,
		DefaultSize: DefaultPageSize,
	}
}

type View struct {
	listview.Page[core.User]
	Analytics []core.MonthlyCount
	Loading   bool
}

// Controller holds the user list. Safe for concurrent use.
type Controller struct {
	backend   Backend
	publisher Publisher
	logger    *log.Logger

	mu        sync.Mutex
	list      *listview.List[core.User]
	analytics []core.MonthlyCount
	loading   bool
	loaded    bool
}

func NewController(backend Backend, publisher Publisher, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Nop()
	}
	return &Controller{
		backend:   backend,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentAdmin),
		list:      listview.New(Schema()),
	}
}

// Load fetches the user table. On failure the previous list is kept.
func (c *Controller) Load(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	users, err := c.backend.Users(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Loading users failed", log.FieldOperation, log.OpLoad, log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return fmt.Errorf("load users: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetItems(users)
	c.loaded = true
	c.logger.DebugContext(ctx, "Users loaded", log.FieldCount, len(users))
	return nil
}

// LoadAnalytics fetches the monthly sign-up counts. It is independent of the
// user table: neither load touches what the other one holds.
func (c *Controller) LoadAnalytics(ctx context.Context) error {
	counts, err := c.backend.UserAnalytics(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Loading analytics failed", log.FieldOperation, log.OpLoad, log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return fmt.Errorf("load analytics: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.analytics = counts
	return nil
}

// Loaded reports whether a Load has succeeded.
func (c *Controller) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetQuery(q)
}

func (c *Controller) SetSort(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetSort(key)
}

func (c *Controller) SetPageSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetPageSize(n)
}

func (c *Controller) SetPage(p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.SetPage(p)
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{Page: c.list.View(), Analytics: append([]core.MonthlyCount(nil), c.analytics...), Loading: c.loading}
}

func (c *Controller) Get(id string) (core.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Find(func(u core.User) bool { return u.ID == id })
}

// CanDelete reports whether the admin signed in as actor may delete u.
func CanDelete(u core.User, actor string) bool {
	return !strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(actor))
}

// SetRole changes a user's role and updates the local copy once the backend
// accepted it.
func (c *Controller) SetRole(ctx context.Context, actor, id string, role core.Role) (core.User, error) {
	if !role.Valid() {
		return core.User{}, core.ErrInvalidRole
	}
	u, ok := c.Get(id)
	if !ok {
		return core.User{}, ErrNotFound
	}

	if err := c.backend.SetUserRole(ctx, id, role); err != nil {
		c.logger.WarnContext(ctx, "Role change failed",
			log.FieldOperation, log.OpSetRole, log.FieldUserID, id, log.FieldRole, role,
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return core.User{}, fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	c.mu.Lock()
	c.list.Replace(func(x core.User) bool { return x.ID == id }, func(x core.User) core.User {
		x.Role = role
		return x
	})
	c.mu.Unlock()
	u.Role = role

	c.logger.InfoContext(ctx, "Role changed", log.FieldUserID, id, log.FieldEmail, u.Email, log.FieldRole, role)
	c.publish(ctx, core.ActivityUserRoleChanged, id, actor, string(role))
	return u, nil
}

// Delete removes a user after confirmation. An admin can never delete the
// account they are signed in with.
func (c *Controller) Delete(ctx context.Context, actor, id string, confirmed bool) error {
	u, ok := c.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !CanDelete(u, actor) {
		return ErrSelfDelete
	}
	if !confirmed {
		return ErrNotConfirmed
	}

	if err := c.backend.DeleteUser(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "User deletion failed",
			log.FieldOperation, log.OpDelete, log.FieldUserID, id,
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeBackend)
		return fmt.Errorf("%w: %w", ErrActionFailed, err)
	}

	c.mu.Lock()
	c.list.Remove(func(x core.User) bool { return x.ID == id })
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "User deleted", log.FieldUserID, id, log.FieldEmail, u.Email)
	c.publish(ctx, core.ActivityUserDeleted, id, actor, u.Email)
	return nil
}

func (c *Controller) publish(ctx context.Context, kind core.ActivityKind, subject, actor, detail string) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.PublishActivity(ctx, core.Activity{
		ID:      uuid.NewString(),
		Kind:    kind,
		Subject: subject,
		Actor:   actor,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish activity", log.FieldActivity, kind, log.FieldError, err)
	}
}
