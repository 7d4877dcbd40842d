// Package bidder defines the interface every demand partner adapter
// implements and the registry the exchange uses to find the bidders an
// impression is offered to.
package bidder
