// Package identity decides whether a sender is the bot owner, a bot-level
// admin or a group admin. Verdicts are cached per time bucket.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultMaxEntries = 1000
)

// Verdict is the privilege of a sender in a chat at a point in time.
// IsAdmin is true for bot-level admins and for admins of the group the
// message was posted in.
type Verdict struct {
	IsOwner      bool
	IsAdmin      bool
	IsBotAdmin   bool
	IsGroupAdmin bool
}

// Privileged reports whether the sender may run admin-only commands.
func (v Verdict) Privileged() bool {
	return v.IsOwner || v.IsAdmin
}

type Config struct {
	Owner             string
	Admins            []string
	SignificantDigits int
	TTL               time.Duration
	MaxEntries        int
}

type Resolver struct {
	owner      string
	admins     map[string]struct{}
	digits     int
	ttl        time.Duration
	directory  transport.GroupDirectory
	cache      *verdictCache
	groupCache *verdictCache
	now        func() time.Time
}

// NewResolver builds a resolver. directory may be nil, in which case group
// admin status is never granted.
func NewResolver(cfg Config, directory transport.GroupDirectory) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.SignificantDigits < 0 {
		cfg.SignificantDigits = 0
	}

	r := &Resolver{
		owner:      Normalize(cfg.Owner, cfg.SignificantDigits),
		admins:     make(map[string]struct{}, len(cfg.Admins)),
		digits:     cfg.SignificantDigits,
		ttl:        cfg.TTL,
		directory:  directory,
		cache:      newVerdictCache(cfg.MaxEntries),
		groupCache: newVerdictCache(cfg.MaxEntries),
		now:        time.Now,
	}
	for _, a := range cfg.Admins {
		if n := Normalize(a, cfg.SignificantDigits); n != "" {
			r.admins[n] = struct{}{}
		}
	}
	return r
}

// SetClock replaces the time source. Tests use it to step across buckets.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Same reports whether two raw ids name the same identity.
func (r *Resolver) Same(a, b string) bool {
	na := Normalize(a, r.digits)
	return na != "" && na == Normalize(b, r.digits)
}

func (r *Resolver) key(chatID, senderID string, now time.Time) cacheKey {
	bucket := now.UnixNano() / int64(r.ttl)
	return cacheKey{chatID: chatID, senderID: Normalize(senderID, r.digits), bucket: bucket}
}

// Resolve returns the verdict for senderID in chatID. Unknown senders get the
// zero verdict; directory failures are logged and treated as non-admin.
func (r *Resolver) Resolve(ctx context.Context, chatID, senderID string, isGroup bool) Verdict {
	now := r.now()
	k := r.key(chatID, senderID, now)
	if v, ok := r.cache.get(k, now); ok {
		return v
	}

	norm := Normalize(senderID, r.digits)
	v := Verdict{}
	if norm != "" {
		v.IsOwner = r.owner != "" && norm == r.owner
		_, v.IsBotAdmin = r.admins[norm]
	}
	if isGroup && norm != "" {
		v.IsGroupAdmin = r.groupAdmin(ctx, chatID, senderID, norm, now)
	}
	v.IsAdmin = v.IsBotAdmin || v.IsGroupAdmin

	r.cache.put(k, v, now.Add(r.ttl))
	return v
}

// IsGroupAdmin reports whether senderID administers groupID. With fresh set
// the cache is bypassed and the directory is always asked.
func (r *Resolver) IsGroupAdmin(ctx context.Context, groupID, senderID string, fresh bool) bool {
	norm := Normalize(senderID, r.digits)
	if norm == "" {
		return false
	}
	if fresh {
		admin, err := r.lookupGroupAdmin(ctx, groupID, senderID, norm)
		if err != nil {
			logger.WarnCF("identity", "Group admin lookup failed", map[string]any{
				"group": groupID,
				"error": err.Error(),
			})
		}
		return admin
	}
	return r.groupAdmin(ctx, groupID, senderID, norm, r.now())
}

func (r *Resolver) groupAdmin(ctx context.Context, groupID, senderID, norm string, now time.Time) bool {
	k := cacheKey{chatID: groupID, senderID: norm, bucket: now.UnixNano() / int64(r.ttl)}
	if v, ok := r.groupCache.get(k, now); ok {
		return v.IsGroupAdmin
	}
	admin, err := r.lookupGroupAdmin(ctx, groupID, senderID, norm)
	if err != nil {
		logger.WarnCF("identity", "Group admin lookup failed", map[string]any{
			"group": groupID,
			"error": err.Error(),
		})
		return false
	}
	r.groupCache.put(k, Verdict{IsGroupAdmin: admin}, now.Add(r.ttl))
	return admin
}

// lookupGroupAdmin asks for the sender alone when the directory supports it
// and falls back to scanning the full member list.
func (r *Resolver) lookupGroupAdmin(ctx context.Context, groupID, senderID, norm string) (bool, error) {
	if r.directory == nil {
		return false, nil
	}
	if ml, ok := r.directory.(transport.MemberLookup); ok {
		m, err := ml.GetGroupMember(ctx, groupID, senderID)
		if err == nil {
			return m.IsAdmin, nil
		}
		if !errors.Is(err, transport.ErrUnsupported) {
			return false, err
		}
	}
	members, err := r.directory.GetGroupMembers(ctx, groupID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.IsAdmin && Normalize(m.ID, r.digits) == norm {
			return true, nil
		}
	}
	return false, nil
}

// CacheLen returns the number of live verdict cache entries.
func (r *Resolver) CacheLen() int {
	return r.cache.len()
}
