// Package constraint implements the attribute-matching predicate language
// used for server placement.
//
// Two constraint kinds exist: "like:<pattern>", a full anchored regular
// expression match against the attribute value, and "unique", which rejects
// values already in use by other active servers. A server's constraint set
// maps attribute names to ordered constraint lists; every constraint must
// pass for an offer to match.
package constraint
