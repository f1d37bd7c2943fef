// Package access decides whether a principal may see a document.
//
// Evaluate is the only place the visibility rule lives. Every call site
// (detail, view log, version history, signed URL) must call it for each
// request; decisions are never cached.
package access

import (
	"errors"
	"fmt"

	"docvault/internal/model"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonGranted        Reason = "granted"
	ReasonAdmin          Reason = "admin"
	ReasonCrossTenant    Reason = "cross_tenant"
	ReasonNoCategoryLink Reason = "no_category_link"
	ReasonRestricted     Reason = "restricted"
)

// ErrDenied is matched by every DeniedError.
var ErrDenied = errors.New("access denied")

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError carries the internal reason of a denial.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Evaluate applies, in order: tenant isolation, admin bypass, category
// department link, and the optional department restriction set.
func Evaluate(p model.Principal, d *model.Document) Decision {
	if d == nil || d.CompanyID != p.CompanyID {
		return Decision{Reason: ReasonCrossTenant}
	}
	if p.Role == model.RoleAdmin {
		return Decision{Allowed: true, Reason: ReasonAdmin}
	}

	if !intersects(p.DepartmentIDs, d.CategoryDepartmentIDs()) {
		return Decision{Reason: ReasonNoCategoryLink}
	}

	if restricted := d.RestrictedDepartmentIDs(); len(restricted) > 0 && !intersects(p.DepartmentIDs, restricted) {
		return Decision{Reason: ReasonRestricted}
	}

	return Decision{Allowed: true, Reason: ReasonGranted}
}

// CanAccess is Evaluate reduced to a boolean.
func CanAccess(p model.Principal, d *model.Document) bool {
	return Evaluate(p, d).Allowed
}

// SameTenant checks only tenant isolation.
func SameTenant(p model.Principal, d *model.Document) error {
	if d == nil || d.CompanyID != p.CompanyID {
		return &DeniedError{Reason: ReasonCrossTenant}
	}
	return nil
}

func intersects(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
