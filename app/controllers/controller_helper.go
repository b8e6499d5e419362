package controllers

// Controllers bundles the HTTP handlers the router mounts.
type Controllers struct {
	Billing     *BillingController
	Usage       *UsageController
	Entitlement *EntitlementController
	Account     *AccountController
}
