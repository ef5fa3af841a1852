package models

// NoInterest is the sentinel tag used when a match request carries no interests.
const NoInterest = "no interest"

// Profile is what a connection tells the matchmaker about itself.
type Profile struct {
	Fingerprint string
	DisplayName string
	Interests   []string
	Language    string
	// Verified is set when Fingerprint came from a signed /anonid token.
	Verified bool
}

// HasInterests reports whether the profile carries real interest tags rather
// than the NoInterest sentinel.
func (p Profile) HasInterests() bool {
	return !(len(p.Interests) == 0 || (len(p.Interests) == 1 && p.Interests[0] == NoInterest))
}
