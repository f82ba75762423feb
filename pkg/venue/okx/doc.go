// Package okx describes the OKX v5 REST API for the dispatcher.
//
// OKX limits each endpoint separately, mostly per 2 seconds, and reports no usage
// headers, so local accounting is never reconciled. Signed requests carry a
// passphrase alongside the key.
package okx
