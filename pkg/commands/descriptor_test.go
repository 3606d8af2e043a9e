package commands

import (
	"testing"

	"github.com/tinyland-inc/picowarden/pkg/identity"
)

func TestDescriptor_Allows(t *testing.T) {
	owner := identity.Verdict{IsOwner: true}
	admin := identity.Verdict{IsAdmin: true, IsGroupAdmin: true}
	user := identity.Verdict{}

	tests := []struct {
		name string
		d    Descriptor
		v    identity.Verdict
		want bool
	}{
		{"public/user", Descriptor{}, user, true},
		{"admin/user", Descriptor{RequiresAdmin: true}, user, false},
		{"admin/admin", Descriptor{RequiresAdmin: true}, admin, true},
		{"admin/owner", Descriptor{RequiresAdmin: true}, owner, true},
		{"owner/admin", Descriptor{RequiresOwner: true}, admin, false},
		{"owner/owner", Descriptor{RequiresOwner: true}, owner, true},
	}
	for _, tt := range tests {
		if got := tt.d.Allows(tt.v); got != tt.want {
			t.Errorf("%s: Allows() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRequest_ArgString(t *testing.T) {
	req := &Request{Args: []string{"add", "spam.example"}}
	if got := req.ArgString(); got != "add spam.example" {
		t.Errorf("ArgString() = %q", got)
	}
}
