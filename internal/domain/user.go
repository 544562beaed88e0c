package domain

import (
	"context"
	"strconv"
	"time"
)

// UserID is the identity a verified credential resolves to. It never
// changes for the lifetime of a connection.
type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type User struct {
	ID        UserID
	Username  string
	Email     string
	CreatedAt time.Time
}

type UserRepository interface {
	GetByID(ctx context.Context, id UserID) (*User, error)
}
