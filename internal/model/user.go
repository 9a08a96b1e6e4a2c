package model

const (
	DefaultName  = "Anonymous"
	DefaultColor = "#3B82F6"
)

// Profile is the part of a user a client is allowed to choose.
type Profile struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// User is a room member. ID is always the connection id assigned by the
// server; cursor coordinates are never tracked server-side.
type User struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Color   string  `json:"color"`
	CursorX float64 `json:"cursorX"`
	CursorY float64 `json:"cursorY"`
}

// Binds the profile to a connection id, filling in defaults
func (p Profile) Assign(connID string) User {
	u := User{ID: connID, Name: p.Name, Color: p.Color}
	if u.Name == "" {
		u.Name = DefaultName
	}
	if u.Color == "" {
		u.Color = DefaultColor
	}
	return u
}

func (u User) Profile() Profile {
	return Profile{Name: u.Name, Color: u.Color}
}

// Cursor is a relayed pointer position labelled with its owner.
type Cursor struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
}
