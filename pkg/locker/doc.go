// Package locker provides per-key mutual exclusion.
//
// The billing reconciler takes a lease on "billing:user:{id}" before it
// reads the processed-event ledger and applies a transition, so concurrent
// deliveries for the same user (provider retries, Stripe and PayPal events
// interleaving during a provider switch) run one at a time. Memory covers a
// single process; Redis covers several replicas sharing one Redis.
package locker
