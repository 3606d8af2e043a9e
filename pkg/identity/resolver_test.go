package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/transporttest"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in     string
		digits int
		want   string
	}{
		{"15551234567", 10, "5551234567"},
		{"15551234567@s.whatsapp.net", 10, "5551234567"},
		{"15551234567:12@s.whatsapp.net", 10, "5551234567"},
		{"+1 (555) 123-4567", 10, "5551234567"},
		{"123456|alice", 10, "123456"},
		{"@Alice", 10, "alice"},
		{"987654321012345678", 0, "987654321012345678"},
		{"987654321012345678", 10, "987654321012345678"},
		{"+44 20 7946 0958 123", 10, "9460958123"},
		{"  ", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, tt.digits))
		})
	}
}

func TestResolve_OwnerAcrossFormats(t *testing.T) {
	r := NewResolver(Config{Owner: "15551234567", SignificantDigits: 10}, nil)

	for _, sender := range []string{
		"15551234567",
		"15551234567@s.whatsapp.net",
		"15551234567:3@s.whatsapp.net",
		"5551234567",
	} {
		v := r.Resolve(context.Background(), "chat", sender, false)
		assert.True(t, v.IsOwner, "sender %q should resolve as owner", sender)
		assert.True(t, v.Privileged())
	}
}

func TestResolve_UnknownSenderDefaultsToZero(t *testing.T) {
	r := NewResolver(Config{Owner: "1", Admins: []string{"2"}}, nil)
	v := r.Resolve(context.Background(), "chat", "3", false)
	assert.Equal(t, Verdict{}, v)
}

func TestResolve_BotAdmin(t *testing.T) {
	r := NewResolver(Config{Admins: []string{"15550000001@s.whatsapp.net"}}, nil)
	v := r.Resolve(context.Background(), "chat", "15550000001", false)
	assert.True(t, v.IsBotAdmin)
	assert.True(t, v.IsAdmin)
	assert.False(t, v.IsOwner)
}

func TestResolve_GroupAdminFromDirectory(t *testing.T) {
	f := transporttest.New()
	f.Members["g1"] = []transport.Member{
		{ID: "15550000001@s.whatsapp.net", IsAdmin: true},
		{ID: "15550000002@s.whatsapp.net"},
	}
	r := NewResolver(Config{}, f)

	admin := r.Resolve(context.Background(), "g1", "15550000001:7@s.whatsapp.net", true)
	assert.True(t, admin.IsGroupAdmin)
	assert.True(t, admin.IsAdmin)

	member := r.Resolve(context.Background(), "g1", "15550000002", true)
	assert.False(t, member.IsAdmin)
}

func TestResolve_CachedWithinBucket(t *testing.T) {
	f := transporttest.New()
	f.Members["g1"] = []transport.Member{{ID: "100", IsAdmin: true}}
	r := NewResolver(Config{TTL: 30 * time.Second}, f)
	now := time.Unix(1_700_000_010, 0)
	r.SetClock(func() time.Time { return now })

	r.Resolve(context.Background(), "g1", "100", true)
	r.Resolve(context.Background(), "g1", "100", true)
	assert.Equal(t, 1, f.MemberCalls())

	now = now.Add(31 * time.Second)
	r.Resolve(context.Background(), "g1", "100", true)
	assert.Equal(t, 2, f.MemberCalls(), "expired entry must be a cache miss")
}

func TestResolve_DirectoryErrorIsNonAdmin(t *testing.T) {
	f := transporttest.New()
	f.MembersErr = errors.New("metadata unavailable")
	r := NewResolver(Config{}, f)

	v := r.Resolve(context.Background(), "g1", "100", true)
	assert.False(t, v.IsAdmin)
}

func TestIsGroupAdmin_FreshBypassesCache(t *testing.T) {
	f := transporttest.New()
	f.Members["g1"] = []transport.Member{{ID: "100", IsAdmin: true}}
	r := NewResolver(Config{}, f)

	assert.True(t, r.IsGroupAdmin(context.Background(), "g1", "100", false))
	assert.True(t, r.IsGroupAdmin(context.Background(), "g1", "100", false))
	assert.Equal(t, 1, f.MemberCalls())

	f.Members["g1"] = nil
	assert.False(t, r.IsGroupAdmin(context.Background(), "g1", "100", true))
	assert.Equal(t, 2, f.MemberCalls())
}

// memberDirectory answers single-member lookups; the embedded fake counts
// full listings.
type memberDirectory struct {
	*transporttest.Fake
	admins  map[string]bool
	err     error
	lookups int
}

func (d *memberDirectory) GetGroupMember(_ context.Context, _, userID string) (transport.Member, error) {
	d.lookups++
	if d.err != nil {
		return transport.Member{}, d.err
	}
	return transport.Member{ID: userID, IsAdmin: d.admins[userID]}, nil
}

func TestResolve_PrefersSingleMemberLookup(t *testing.T) {
	d := &memberDirectory{Fake: transporttest.New(), admins: map[string]bool{"112233445566778899": true}}
	r := NewResolver(Config{}, d)

	v := r.Resolve(context.Background(), "c1", "112233445566778899", true)
	assert.True(t, v.IsGroupAdmin)
	assert.False(t, r.IsGroupAdmin(context.Background(), "c1", "998877445566778899", true))
	assert.Equal(t, 2, d.lookups)
	assert.Equal(t, 0, d.MemberCalls(), "the member list is never fetched")
}

func TestResolve_UnsupportedLookupFallsBackToListing(t *testing.T) {
	d := &memberDirectory{Fake: transporttest.New(), err: transport.ErrUnsupported}
	d.Members["g1"] = []transport.Member{{ID: "100", IsAdmin: true}}
	r := NewResolver(Config{}, d)

	assert.True(t, r.Resolve(context.Background(), "g1", "100", true).IsGroupAdmin)
	assert.Equal(t, 1, d.MemberCalls())

	d.err = errors.New("unknown member")
	assert.False(t, r.IsGroupAdmin(context.Background(), "g1", "100", true))
	assert.Equal(t, 1, d.MemberCalls(), "lookup errors other than unsupported do not fall back")
}

func TestCache_FIFOEviction(t *testing.T) {
	r := NewResolver(Config{MaxEntries: 3}, nil)
	for i := range 10 {
		r.Resolve(context.Background(), "chat", fmt.Sprintf("%d", i+1), false)
	}
	assert.Equal(t, 3, r.CacheLen())
}

func TestSame(t *testing.T) {
	r := NewResolver(Config{SignificantDigits: 10}, nil)
	assert.True(t, r.Same("15551234567@s.whatsapp.net", "5551234567"))
	assert.False(t, r.Same("1", "2"))
	assert.False(t, r.Same("", ""))

	// Discord snowflakes sharing their last ten digits are different users.
	assert.False(t, r.Same("112233445566778899", "998877445566778899"))
	assert.True(t, r.Same("112233445566778899", "112233445566778899"))
}
