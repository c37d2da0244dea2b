// Package access holds the authorization decisions applied to authenticated requests.
package access

import (
	"strings"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/course"
	"github.com/oasis-elearning/oasis/core/user"
)

// RequireRole accepts `usr` only when their role is one of `roles`.
func RequireRole(usr user.User, roles ...string) error {
	if core.ContainsString(roles, usr.Role) {
		return nil
	}
	return core.NewAuthorizationError("access denied: required roles: %s; your role: %s", strings.Join(roles, ", "), usr.Role)
}

// OwnerOrAdmin accepts admins and the owner of the resource.
func OwnerOrAdmin(usr user.User, ownerID string) error {
	if usr.IsAdmin() || (ownerID != "" && ownerID == usr.ID) {
		return nil
	}
	return core.NewAuthorizationError("access denied: you can only access your own resources")
}

// CourseAccess decides whether `usr` may see a course restricted to `courseDepartment`.
func CourseAccess(usr user.User, courseDepartment string) error {
	switch {
	case usr.IsAdmin():
		return nil
	case usr.IsManager() && usr.Department == courseDepartment:
		return nil
	case usr.Department == courseDepartment:
		return nil
	case courseDepartment == course.AllDepartments:
		return nil
	}
	return core.NewAuthorizationError("access denied: this course is restricted to the %s department", courseDepartment)
}
