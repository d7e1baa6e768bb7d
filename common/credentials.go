package common

// Credentials holds the authentication material used to reach a host and
// to elevate privileges on it.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
	SudoPassword  string
}
