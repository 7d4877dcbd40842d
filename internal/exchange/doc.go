// Package exchange runs the auction: it offers each impression to the
// bidders its extension names, waits for their answers no longer than the
// auction deadline allows and assembles the bid response. A bidder that
// fails or runs out of time is reported in the response extension and never
// fails the auction.
package exchange
