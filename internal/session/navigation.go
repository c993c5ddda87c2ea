package session

import "github.com/ruriclub/supportdesk/internal/model"

const (
	RouteLogin  = "/login"
	RouteSignup = "/signup"
)

var publicRoutes = map[string]bool{"/": true, "/shop": true}

// HomeRoute is where an identity lands after login.
func HomeRoute(role model.Role) string {
	switch role {
	case model.RoleAdmin:
		return "/admin/dashboard"
	case model.RoleEmployee:
		return "/employee/dashboard"
	default:
		return "/profile"
	}
}

// Redirect applies the routing rule: a logged-in identity never stays on an
// entry route and a missing identity never stays on a protected one. It
// returns the target and true when a redirect is due.
func Redirect(id *model.Identity, path string) (string, bool) {
	entry := path == RouteLogin || path == RouteSignup
	switch {
	case id != nil && entry:
		return HomeRoute(id.Role), true
	case id == nil && !entry && !publicRoutes[path]:
		return RouteLogin, true
	}
	return "", false
}
