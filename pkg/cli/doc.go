// Package cli provides wardenctl, the operator command line for roles,
// users, invitations and the audit trail.
//
// # Overview
//
// Every command opens the configured store, runs one operation through the
// same services the daemon uses and closes the store again. Mutations are
// audited like any other caller; the actor is taken from -actor, then
// WARDEN_ACTOR, then "wardenctl".
//
// # Commands
//
// migrate: Apply schema migrations, optionally creating the built-in roles
//
//	wardenctl migrate -seed
//
// role: Manage roles
//
//	wardenctl role list
//	wardenctl role create \
//		-name "Leasing Agent" \
//		-level 3 \
//		-permissions leases:read,leases:create,tenants:read
//	wardenctl role update -id <role-id> -permissions leases:read
//	wardenctl role permissions
//
// user: Provision users and change their access
//
//	wardenctl user create -email pat@example.com -role <role-id>
//	wardenctl user grant -id <user-id> -permissions reports:export
//	wardenctl user status -id <user-id> -status suspended
//
// invite: Send and resolve invitations
//
//	wardenctl invite send -email new.hire@example.com -role <role-id>
//	wardenctl invite list -status pending
//	wardenctl invite accept -id <invitation-id> -user <user-id>
//	wardenctl invite sweep
//
// check: Ask the authorization engine; exits non-zero when denied
//
//	wardenctl check -user <user-id> -permission maintenance:update
//	wardenctl check -user <user-id> -level 2
//
// audit: Query the audit trail (requires the db sink)
//
//	wardenctl audit list -entity-type invitation -since 24h
//	wardenctl audit export -format csv -out audit.csv
//
// # Configuration
//
// Commands read the same configuration as wardend:
//
//	wardenctl -config /etc/warden/warden.yaml role list
//	WARDEN_STORE_URL=postgres://... wardenctl role list
//
// # Related Packages
//
//   - pkg/app: Wires the services each command calls
//   - pkg/config: Configuration loading
package cli
