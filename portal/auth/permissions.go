package auth

import (
	"fmt"
	"net/http"
)

// ManagerOnly guards the admin center endpoints. The user must already be in
// the request context, so this runs after the identity provider middleware.
func ManagerOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsManager {
				http.Error(w, fmt.Sprintf("user %v is not a manager", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// SuperAdminOnly restricts an endpoint to members of the super admin
// department.
func SuperAdminOnly(policy *Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			super, err := policy.IsSuperAdmin(user)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !super {
				http.Error(w, "user must be a super admin to access endpoint", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
