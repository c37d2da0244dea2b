package user

import "golang.org/x/crypto/bcrypt"

// NowFunc lets the external tests move the clock.
var NowFunc = &nowFunc

func init() {
	passwordHashCost = bcrypt.MinCost
}
