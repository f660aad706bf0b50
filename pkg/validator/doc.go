// Package validator runs declarative rules against request fields and
// reports every failure at once.
//
//	err := validator.Apply(
//		validator.Required("plan", req.Plan),
//		validator.OneOf("interval", req.Interval, []string{"monthly", "yearly"}),
//	)
//	if ve, ok := validator.Extract(err); ok {
//		fmt.Println(ve.Fields())
//	}
package validator
