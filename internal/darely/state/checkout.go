package state

import (
	"github.com/H3nryK/Darely/internal/darely"
	apperrors "github.com/H3nryK/Darely/internal/platform/errors"
)

// ProfileCheckout is a profile pulled out of the user map for exclusive
// mutation. Every exit path must check it back in; until then the profile is
// absent from the map, so a checkout must never be held across a suspension
// point such as the outbound generation call.
type ProfileCheckout struct {
	state     *State
	principal darely.Principal
	original  darely.UserProfile
	done      bool

	// Profile is the working copy reinserted by Checkin.
	Profile darely.UserProfile
}

// CheckoutProfile removes the principal's profile from the map and hands it
// out for mutation. The caller must defer Checkin.
func (s *State) CheckoutProfile(principal darely.Principal) (*ProfileCheckout, error) {
	s.mu.Lock()
	profile, had, err := s.users.Remove(principal)
	s.mu.Unlock()
	if err != nil {
		return nil, wrapStorage("checkout profile", err)
	}
	if !had {
		return nil, apperrors.New(apperrors.CodeNotFound, "profile not found")
	}
	return &ProfileCheckout{
		state:     s,
		principal: principal,
		original:  profile,
		Profile:   profile,
	}, nil
}

// Checkin reinserts the working copy. When the insert is rejected, the
// original profile is restored so the map never loses the entry. Checkin is
// idempotent; only the first call writes.
func (c *ProfileCheckout) Checkin() error {
	if c.done {
		return nil
	}
	c.done = true
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if _, _, err := c.state.users.Insert(c.principal, c.Profile); err != nil {
		if _, _, restoreErr := c.state.users.Insert(c.principal, c.original); restoreErr != nil {
			return wrapStorage("restore profile", restoreErr)
		}
		return wrapStorage("checkin profile", err)
	}
	return nil
}

// Restore abandons the working copy and checks the original profile back in.
func (c *ProfileCheckout) Restore() error {
	c.Profile = c.original
	return c.Checkin()
}

// UpdateProfile checks the profile out, applies fn to the working copy, and
// guarantees a checkin on every path. When fn fails the original profile is
// restored untouched.
func (s *State) UpdateProfile(principal darely.Principal, fn func(*darely.UserProfile) error) (err error) {
	checkout, err := s.CheckoutProfile(principal)
	if err != nil {
		return err
	}
	defer func() {
		var checkinErr error
		if err != nil {
			checkinErr = checkout.Restore()
		} else {
			checkinErr = checkout.Checkin()
		}
		if checkinErr != nil && err == nil {
			err = checkinErr
		}
	}()
	err = fn(&checkout.Profile)
	return err
}
