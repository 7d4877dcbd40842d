// Package auction prepares an incoming bid request for execution: it fills in
// what can be derived from the HTTP request and checks the result for
// structural errors before the exchange sees it.
package auction
