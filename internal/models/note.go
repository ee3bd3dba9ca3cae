package models

import "time"

type Note struct {
	ID        string    `json:"id" bson:"_id"`
	OwnerID   string    `json:"owner" bson:"owner"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	ImageURL  string    `json:"imageUrl,omitempty" bson:"imageUrl"`
	ImageKey  string    `json:"-" bson:"imageKey"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (n Note) HasImage() bool {
	return n.ImageKey != ""
}
