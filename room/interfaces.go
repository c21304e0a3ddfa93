package room

// Gate seals a private room's password at creation and checks attempts at join.
type Gate interface {
	Seal(password string) (string, error)
	Open(sealed, attempt string) (bool, error)
}
