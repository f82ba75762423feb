// Package bybit describes the Bybit v5 REST API for the dispatcher.
//
// Bybit limits each IP to 600 requests per 5 seconds and each account per
// endpoint per second. The per-endpoint counter is echoed in X-Bapi-Limit,
// X-Bapi-Limit-Status and X-Bapi-Limit-Reset-Timestamp. Most errors come back as
// HTTP 200 with a non-zero retCode.
//
// Bybit API Documentation: https://bybit-exchange.github.io/docs/v5/intro
package bybit
