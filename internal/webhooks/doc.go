// Package webhooks verifies and decodes provider webhook deliveries.
//
// Stripe signs payloads with a Stripe-Signature header ("t=<unix>,v1=<hex>")
// computed as HMAC-SHA256 over "<t>.<body>". Resend delivers through Svix,
// which signs "<svix-id>.<svix-timestamp>.<body>" with a base64 secret
// prefixed "whsec_" and sends one or more "v1,<base64>" signatures.
// Verification is delegated to stripe-go and svix-webhooks. Stale Stripe
// timestamps are rejected; Svix timestamps are checked in both directions.
package webhooks
