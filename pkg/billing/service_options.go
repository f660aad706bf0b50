package billing

import "log/slog"

// ServiceOption configures a Service.
type ServiceOption func(*service)

// WithAdapter registers a webhook adapter. Registering a second adapter
// for the same provider panics.
func WithAdapter(a Adapter) ServiceOption {
	return func(s *service) {
		if a == nil {
			return
		}
		if _, exists := s.adapters[a.Provider()]; exists {
			panic("billing: adapter for provider " + string(a.Provider()) + " already registered")
		}
		s.adapters[a.Provider()] = a
	}
}

// WithCheckout registers a checkout initiator.
func WithCheckout(c CheckoutInitiator) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.checkouts[c.Provider()] = c
		}
	}
}

// WithPortal sets the billing portal provider.
func WithPortal(p PortalProvider) ServiceOption {
	return func(s *service) {
		if p != nil {
			s.portal = p
		}
	}
}

// WithActivator sets the client-side PayPal approval handler.
func WithActivator(a SubscriptionActivator) ServiceOption {
	return func(s *service) {
		if a != nil {
			s.activator = a
		}
	}
}

// WithStripe registers p as Stripe webhook adapter, checkout and portal.
func WithStripe(p *StripeProvider) ServiceOption {
	return func(s *service) {
		if p == nil {
			return
		}
		WithAdapter(p)(s)
		WithCheckout(p)(s)
		WithPortal(p)(s)
	}
}

// WithPayPal registers p as PayPal webhook adapter, checkout and activator.
func WithPayPal(p *PayPalProvider) ServiceOption {
	return func(s *service) {
		if p == nil {
			return
		}
		WithAdapter(p)(s)
		WithCheckout(p)(s)
		WithActivator(p)(s)
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) ServiceOption {
	return func(s *service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithReconcilerOptions passes options to the underlying Reconciler.
func WithReconcilerOptions(opts ...ReconcilerOption) ServiceOption {
	return func(s *service) {
		s.reconcilerOpts = append(s.reconcilerOpts, opts...)
	}
}
