// Package jwt verifies the HS256 access tokens issued by the MAXFIT AI auth
// service and exposes the authenticated user id to billing handlers.
//
//	svc, err := jwt.New(cfg)
//	if err != nil {
//		return err
//	}
//	r.With(jwt.Middleware(svc,
//		jwt.WithExtractors(jwt.BearerTokenExtractor, jwt.CookieTokenExtractor(cfg.Cookie)),
//	)).Get("/billing/entitlement", h)
//
// Inside the handler jwt.UserID(r.Context()) returns the token subject.
package jwt
