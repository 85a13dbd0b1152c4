package store

import (
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/accountd/accountd/internal/httpcond"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User is the stored account record. UpdatedAt moves on every write and is,
// together with ID, what the response fingerprints are derived from.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) ResourceVersion() httpcond.ResourceVersion {
	return httpcond.ResourceVersion{ID: u.ID, LastModified: u.UpdatedAt}
}

// The records are stored msgpack tuple-encoded, field order below is the
// wire format.
const userTupleSize = 7

func (u User) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, u.Msgsize())
	o = msgp.AppendArrayHeader(o, userTupleSize)
	o = msgp.AppendString(o, u.ID)
	o = msgp.AppendString(o, u.Email)
	o = msgp.AppendString(o, u.Name)
	o = msgp.AppendString(o, u.PasswordHash)
	o = msgp.AppendString(o, u.Role)
	o = msgp.AppendTime(o, u.CreatedAt)
	o = msgp.AppendTime(o, u.UpdatedAt)
	return o, nil
}

func (u *User) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	if sz != userTupleSize {
		return bts, msgp.ArrayError{Wanted: userTupleSize, Got: sz}
	}

	if u.ID, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	if u.Email, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	if u.Name, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	if u.PasswordHash, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	if u.Role, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return bts, err
	}
	if u.CreatedAt, bts, err = msgp.ReadTimeBytes(bts); err != nil {
		return bts, err
	}
	if u.UpdatedAt, bts, err = msgp.ReadTimeBytes(bts); err != nil {
		return bts, err
	}
	return bts, nil
}

func (u User) Msgsize() int {
	return msgp.ArrayHeaderSize +
		5*msgp.StringPrefixSize +
		len(u.ID) + len(u.Email) + len(u.Name) + len(u.PasswordHash) + len(u.Role) +
		2*msgp.TimeSize
}
