// Package invitations implements the user invitation lifecycle.
//
// An invitation is sent to an email address for a role and is pending until
// it is accepted, cancelled or expires:
//
//	pending --accept--> accepted
//	pending --cancel--> cancelled
//	pending --expire--> expired
//
// The three outcomes are terminal. At most one live (pending and unexpired)
// invitation exists per email address; the SQL store backs this with a
// partial unique index.
//
// Every transition goes through Repository.CompareAndSwap guarded on the
// stored status and resend count, so concurrent Accept calls on the same
// invitation resolve to one winner and overlapping Resends each land. Accept
// also requires the stored expiry to still be ahead. Accept provisions the user after the claim and releases the claim
// again when provisioning fails.
//
// Expiry is lazy: Get, List, Resend, Cancel and Accept persist the expired
// state of a past-due invitation they touch. SweepExpired, usually driven
// by a Sweeper on a cron schedule, expires the rest.
//
// Every transition is audited through an audit.Emitter.
package invitations
